package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/suPer8Hu/snapquestion/internal/answer"
	"github.com/suPer8Hu/snapquestion/internal/widget"
)

type uploader interface {
	UploadDocument(ctx context.Context, tenantID, filename string, r io.Reader) (*answer.Upload, error)
}

type session struct {
	ctrl      *widget.Controller
	uploader  uploader
	out       io.Writer
	indicator widget.Indicator
	open      func(path string) (io.ReadCloser, error)
}

func openFile(path string) (io.ReadCloser, error) { return os.Open(path) }

const helpText = `commands:
  /clear          start over (same conversation)
  /upload <path>  add a document to the knowledge base
  /quit           exit`

// run reads one message per line until EOF, /quit or ctx is done.
func (s *session) run(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(s.out, widget.WelcomeText)
	fmt.Fprintln(s.out, "(/help for commands)")

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		fmt.Fprint(s.out, "> ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(s.out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(s.out)
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			line = l
		}

		cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
		switch cmd {
		case "/quit", "/exit":
			return nil
		case "/help":
			fmt.Fprintln(s.out, helpText)
			continue
		case "/clear":
			s.ctrl.Clear()
			fmt.Fprintln(s.out, "(cleared)")
			fmt.Fprintln(s.out, widget.WelcomeText)
			continue
		case "/upload":
			s.upload(ctx, strings.TrimSpace(arg))
			continue
		}

		rec, err := s.ctrl.Submit(ctx, line)
		if err != nil {
			// blank line; a pending submit cannot happen since we wait below
			continue
		}
		reply, err := s.indicator.Follow(ctx, rec, s.drawFrame)
		if err != nil {
			fmt.Fprintln(s.out, "(reply abandoned)")
			return nil
		}
		fmt.Fprint(s.out, formatTurn(widget.RenderTurn(reply)))
	}
}

func (s *session) drawFrame(frame string) {
	if frame == "" {
		fmt.Fprint(s.out, "\r\033[K")
		return
	}
	fmt.Fprint(s.out, "\r"+frame)
}

func (s *session) upload(ctx context.Context, path string) {
	if path == "" {
		fmt.Fprintln(s.out, "usage: /upload <path>")
		return
	}
	f, err := s.open(path)
	if err != nil {
		fmt.Fprintf(s.out, "upload failed: %v\n", err)
		return
	}
	defer f.Close()

	up, err := s.uploader.UploadDocument(ctx, s.ctrl.Config().TenantID, filepath.Base(path), f)
	if err != nil {
		fmt.Fprintf(s.out, "upload failed: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "uploaded %s: source %s (%s, %d bytes)\n", filepath.Base(path), up.SourceID, up.Status, up.Size)
}

// formatTurn is the plain-text rendering of one assistant turn.
func formatTurn(tv widget.TurnView) string {
	var b strings.Builder
	prefix := "bot"
	if tv.IsError {
		prefix = "bot!"
	}
	fmt.Fprintf(&b, "%s [%s] %s\n", prefix, tv.Time, tv.Text)
	if c := tv.Confidence; c != nil {
		fmt.Fprintf(&b, "    confidence: %d%% (%s)\n", c.Percent, c.Tier)
	}
	if len(tv.Citations) > 0 {
		fmt.Fprintf(&b, "    sources: %s\n", strings.Join(tv.Citations, "; "))
	}
	if tv.Notice != "" {
		fmt.Fprintf(&b, "    %s\n", tv.Notice)
	}
	return b.String()
}
