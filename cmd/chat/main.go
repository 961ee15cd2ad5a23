// Command chat is the widget in a terminal: type a question, get an answer.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/suPer8Hu/snapquestion/internal/answer"
	"github.com/suPer8Hu/snapquestion/internal/config"
	"github.com/suPer8Hu/snapquestion/internal/logger"
	"github.com/suPer8Hu/snapquestion/internal/widget"
)

// Options mirror the script tag attributes of the embedded widget.
type Options struct {
	Tenant   string `short:"t" long:"tenant" env:"SNAPQ_TENANT" description:"tenant id" default:"demo"`
	Position string `long:"position" description:"bottom-right|bottom-left (cosmetic)"`
	Color    string `long:"color" description:"accent color, #RRGGBB (cosmetic)"`
	APIURL   string `short:"a" long:"api-url" description:"answering API base url (default SNAPQ_API_BASE)"`
	Token    string `long:"token" env:"SNAPQ_ID_TOKEN" description:"identity token; DEV when empty"`
	Verbose  bool   `short:"v" long:"verbose" description:"log request failures to stderr"`
}

func main() {
	opts := &Options{}
	parser := flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.Parse(); err != nil {
		if flags.WroteHelp(err) {
			return
		}
		log.Fatalf("%v", err)
	}

	cfg := config.Load()
	attrs := map[string]string{
		"data-tenant":   opts.Tenant,
		"data-position": opts.Position,
		"data-color":    opts.Color,
		"data-api-url":  cfg.APIBaseURL,
	}
	if opts.APIURL != "" {
		attrs["data-api-url"] = opts.APIURL
	}
	embed := widget.ParseEmbedConfig(attrs)

	// failures are shown as the generic error turn; details only with -v
	logOut := io.Discard
	if opts.Verbose {
		logOut = os.Stderr
	}
	lg := logger.New(logOut, false)

	client := answer.NewClient(embed.APIBaseURL, answer.IdentityOrDev{Configured: opts.Token})
	ctrl, err := widget.NewController(embed, client, widget.WithLogger(lg))
	if err != nil {
		log.Fatalf("mount: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(os.Stdout, "SnapQuestion (%s, %s)\n", embed.TenantID, ctrl.ConversationID())
	sess := &session{
		ctrl:      ctrl,
		uploader:  client,
		out:       os.Stdout,
		indicator: widget.DefaultIndicator,
		open:      openFile,
	}
	if err := sess.run(ctx, os.Stdin); err != nil {
		log.Fatalf("%v", err)
	}
}
