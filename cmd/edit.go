package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/bindpad/internal/browser/dom"
	"github.com/xkilldash9x/bindpad/internal/browser/form"
	"github.com/xkilldash9x/bindpad/internal/bus"
	"github.com/xkilldash9x/bindpad/internal/config"
	"github.com/xkilldash9x/bindpad/internal/editor"
	"github.com/xkilldash9x/bindpad/internal/observability"
	"github.com/xkilldash9x/bindpad/internal/render"
	"github.com/xkilldash9x/bindpad/internal/shell"
)

const editHelp = `commands:
  list                          show every bind
  add                           create a bind
  rm <id>                       remove a bind
  set <id> <field> <value...>   edit a field (code, action, value, repeat on|off)
  code                          show the last pressed code
  copy                          copy the last pressed code
  html                          print the page
  quit                          leave (pending edits follow editor.flush_on_close)
`

func newEditCmd() *cobra.Command {
	editCmd := &cobra.Command{
		Use:   "edit",
		Short: "Open an interactive editor shell connected to a running host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return runEdit(ctx, cfg, cmd.InOrStdin(), cmd.OutOrStdout(), observability.GetLogger())
		},
	}
	editCmd.Flags().String("url", "", "host websocket URL (overrides shell.url)")
	editCmd.Flags().Duration("settle-delay", 0, "how long a bind must stay untouched before it is saved")
	editCmd.Flags().Bool("flush", false, "save pending edits when leaving")
	return editCmd
}

// runEdit connects to the host and runs an editor session over in and out.
func runEdit(ctx context.Context, cfg config.Interface, in io.Reader, out io.Writer, logger *zap.Logger) error {
	eb := bus.New(logger, cfg.Shell().EventBuffer)
	defer eb.Shutdown()

	client, err := shell.Dial(ctx, cfg.Shell(), eb, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	page, err := render.Page(nil)
	if err != nil {
		return err
	}
	doc, err := dom.ParseString(page, logger)
	if err != nil {
		return err
	}

	clip := newClipboard(cfg.Editor(), logger)
	ctrl, err := editor.NewController(doc, client, clip, logger, editor.Options{
		SettleDelay:     cfg.Editor().SettleDelay,
		FlushOnClose:    cfg.Editor().FlushOnClose,
		DispatchTimeout: cfg.Editor().DispatchTimeout,
	})
	if err != nil {
		return err
	}
	listener, err := editor.NewCodeListener(doc, eb, clip, logger)
	if err != nil {
		return err
	}

	var loops errgroup.Group
	loops.Go(func() error { listener.Run(ctx); return nil })
	defer func() {
		// The controller goes first so flushed edits still reach the host.
		_ = ctrl.Close()
		_ = client.Close()
		eb.Shutdown()
		_ = loops.Wait()
	}()

	if err := ctrl.List(ctx); err != nil {
		return err
	}

	s := &session{doc: doc, ctrl: ctrl, listener: listener, clip: clip, out: out}
	fmt.Fprint(out, editHelp)
	return s.loop(ctx, in, client.Done())
}

func newClipboard(cfg config.EditorConfig, logger *zap.Logger) editor.Clipboard {
	if cfg.ClipboardCommand == "" {
		return &editor.MemoryClipboard{}
	}
	clip, err := editor.NewCommandClipboard(cfg.ClipboardCommand)
	if err != nil {
		logger.Warn("Invalid clipboard command, copying in memory only", zap.Error(err))
		return &editor.MemoryClipboard{}
	}
	return clip
}

// session drives the editor page the way a user would: every command ends
// in a click or an input event on the document.
type session struct {
	doc      *dom.Document
	ctrl     *editor.Controller
	listener *editor.CodeListener
	clip     editor.Clipboard
	out      io.Writer
}

var errQuit = errors.New("quit")

// loop reads commands until EOF, quit, ctx or hostGone.
func (s *session) loop(ctx context.Context, in io.Reader, hostGone <-chan struct{}) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(s.out, "bindpad > ")
		select {
		case <-ctx.Done():
			return nil
		case <-hostGone:
			return fmt.Errorf("connection to host lost")
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			err := s.exec(ctx, line)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				fmt.Fprintln(s.out, "error:", err)
			}
		}
	}
}

func (s *session) exec(ctx context.Context, line string) error {
	args := strings.Fields(line)
	if len(args) == 0 {
		return nil
	}
	switch args[0] {
	case "help", "?":
		fmt.Fprint(s.out, editHelp)
	case "quit", "exit":
		return errQuit
	case "list", "ls":
		return s.list()
	case "add":
		return s.click(ctx, editor.SelectorAddBind)
	case "rm":
		if len(args) != 2 {
			return fmt.Errorf("usage: rm <id>")
		}
		return s.click(ctx, fmt.Sprintf(`.bind button.remove[target="%s"]`, args[1]))
	case "set":
		if len(args) < 4 {
			return fmt.Errorf("usage: set <id> <field> <value...>")
		}
		return s.set(args[1], args[2], strings.Join(args[3:], " "))
	case "code":
		fmt.Fprintln(s.out, s.listener.Code())
	case "copy":
		if err := s.click(ctx, editor.SelectorPressedCode); err != nil {
			return err
		}
		if mem, ok := s.clip.(*editor.MemoryClipboard); ok {
			fmt.Fprintln(s.out, "copied:", mem.Text())
		}
	case "html":
		root, err := s.doc.Find("html")
		if err != nil {
			return err
		}
		fmt.Fprintln(s.out, s.doc.OuterHTML(root))
	default:
		return fmt.Errorf("unknown command %q, try help", args[0])
	}
	return nil
}

func (s *session) click(ctx context.Context, selector string) error {
	target, err := s.doc.Find(selector)
	if err != nil {
		return err
	}
	return s.ctrl.HandleClick(ctx, target)
}

// set changes one control of a bind form and fires its input event.
func (s *session) set(id, field, value string) error {
	bindSel, err := editor.BindSelector(id)
	if err != nil {
		return err
	}

	var target *html.Node
	switch field {
	case editor.FieldAction:
		target, err = s.doc.Find(fmt.Sprintf(`%s input[name="action"][value="%s"]`, bindSel, value))
		if err != nil {
			return fmt.Errorf("no action %q on bind %s", value, id)
		}
		s.doc.SetChecked(target, true)
	case editor.FieldRepeat:
		target, err = s.doc.Find(bindSel + ` input[name="repeat"]`)
		if err != nil {
			return err
		}
		s.doc.SetChecked(target, value == "on" || value == "true" || value == "yes")
	case editor.FieldCode, editor.FieldValue:
		target, err = s.doc.Find(fmt.Sprintf(`%s [name="%s"]`, bindSel, field))
		if err != nil {
			return err
		}
		s.doc.SetValue(target, value)
	default:
		return fmt.Errorf("unknown field %q", field)
	}

	if err := s.ctrl.HandleInput(target); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "saving %s once it settles\n", id)
	return nil
}

// list prints the binds as the page currently shows them.
func (s *session) list() error {
	forms, err := s.doc.QuerySelectorAll(editor.SelectorBinds + " .bind form")
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCODE\tACTION\tVALUE\tREPEAT\tPENDING")
	for _, node := range forms {
		f, err := form.Of(s.doc, node)
		if err != nil {
			return err
		}
		snap := f.Snapshot()
		id, _ := snap.Text(editor.FieldID)
		code, _ := snap.Text(editor.FieldCode)
		action, _ := snap.Text(editor.FieldAction)
		value, _ := snap.Text(editor.FieldValue)
		repeat, _ := snap.Bool(editor.FieldRepeat)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%t\n", id, code, action, value, repeat, s.ctrl.Pending(id))
	}
	return tw.Flush()
}
