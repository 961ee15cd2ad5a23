package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/snapquestion/internal/common"
	"github.com/suPer8Hu/snapquestion/internal/contact"
	"gorm.io/gorm"
)

func (h *Handler) SubmitContact(c *gin.Context) {
	var in contact.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	in.IdempotencyKey = strings.TrimSpace(c.GetHeader("Idempotency-Key"))

	req, created, err := h.Contacts.Submit(c.Request.Context(), in)
	if err != nil {
		if errors.Is(err, contact.ErrInvalid) {
			common.Fail(c, http.StatusBadRequest, 10003, strings.TrimPrefix(err.Error(), "contact: invalid request: "))
			return
		}
		slog.ErrorContext(c.Request.Context(), "contact submit failed", "created", created, "err", err)
		if created {
			common.Fail(c, http.StatusInternalServerError, 50002, "enqueue failed")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	common.OK(c, gin.H{"id": req.ID, "status": req.Status, "created": created})
}

func (h *Handler) ListContacts(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	status := contact.Status(c.Query("status"))

	reqs, err := h.Contacts.ListRecent(c.Request.Context(), limit, status)
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "list contacts failed", "err", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, gin.H{"requests": reqs})
}

func (h *Handler) GetContact(c *gin.Context) {
	req, err := h.Contacts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40405, "contact request not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, gin.H{"request": req})
}
