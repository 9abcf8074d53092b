package callerpro

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/abiosoft/ishell/v2"
	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	ctrllog "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/eburon/callerpro/pkg/callcenter"
	"github.com/eburon/callerpro/pkg/callcenter/agent"
	"github.com/eburon/callerpro/pkg/callcenter/backend"
	"github.com/eburon/callerpro/pkg/callcenter/call"
)

const defaultWidth = 80

var (
	agentColor  = color.New(color.FgCyan, color.Bold).SprintFunc()
	callerColor = color.New(color.FgGreen, color.Bold).SprintFunc()
	toolColor   = color.New(color.FgYellow).SprintFunc()
	stateColor  = color.New(color.Faint).SprintFunc()
	errorColor  = color.New(color.FgRed, color.Bold).SprintFunc()
)

// NewCallCmd creates the call command
func NewCallCmd(v *viper.Viper) *cobra.Command {
	var width int

	cmd := &cobra.Command{
		Use:   "call [agent-id]",
		Short: "Place a call from the console softphone",
		Long: `Start an interactive softphone. Lines that are not commands are spoken to
the agent. With an agent id the call is dialed right away.

Commands:
  dial [agent-id]   Call an agent (the first dialer-active agent by default)
  say <text>        Speak to the agent
  hold, resume      Put the agent on hold and take it back
  hangup            End the call
  status            Show the call state
  transcript        Print the transcript of the current or last call
  agents            List the catalog

Examples:
  callerpro call
  callerpro call default-ayla-agent --device silent`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			agentID := ""
			if len(args) == 1 {
				agentID = args[0]
			}
			return runCall(cmd.Context(), v, agentID, width)
		},
	}

	cmd.Flags().String("device", "", "Audio device: ffplay or silent (overrides audio.device)")
	cmd.Flags().IntVar(&width, "width", defaultWidth, "Wrap agent replies at this width")
	_ = v.BindPFlag("audio.device", cmd.Flags().Lookup("device"))

	return cmd
}

func runCall(ctx context.Context, v *viper.Viper, agentID string, width int) error {
	log := ctrllog.Log.WithName("softphone")
	ctx = ctrllog.IntoContext(ctx, log)

	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}

	app, err := callcenter.NewApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}
	defer func() {
		if err := app.Close(context.Background()); err != nil {
			log.Error(err, "Failed to release resources")
		}
	}()
	app.Preload(ctx)

	shell := ishell.New()
	shell.SetPrompt("callerpro> ")

	phone := newSoftphone(app.Catalog, app.Orchestrator, shell.Println, width)
	phone.spinner = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))

	events := app.Orchestrator.Subscribe()
	go phone.follow(events)
	defer app.Orchestrator.Unsubscribe(events)

	phone.register(ctx, shell)

	if agentID != "" {
		if err := phone.dial(ctx, agentID); err != nil {
			shell.Println(errorColor("Dial failed: ") + err.Error())
		}
	}

	shell.Println("Type help for commands. Anything else is spoken to the agent.")
	shell.Run()
	shell.Close()
	return nil
}

// softphone renders a call on the console.
type softphone struct {
	catalog agent.Catalog
	orch    *call.Orchestrator
	println func(a ...interface{})
	width   int
	spinner *spinner.Spinner

	mu        sync.Mutex
	agentName string
}

func newSoftphone(catalog agent.Catalog, orch *call.Orchestrator, println func(a ...interface{}), width int) *softphone {
	if width <= 10 {
		width = defaultWidth
	}
	return &softphone{catalog: catalog, orch: orch, println: println, width: width, agentName: "Agent"}
}

func (p *softphone) register(ctx context.Context, shell *ishell.Shell) {
	run := func(fn func(c *ishell.Context) error) func(c *ishell.Context) {
		return func(c *ishell.Context) {
			if err := fn(c); err != nil {
				c.Println(errorColor("Error: ") + err.Error())
			}
		}
	}

	shell.AddCmd(&ishell.Cmd{
		Name: "dial",
		Help: "call an agent",
		Func: run(func(c *ishell.Context) error {
			id := ""
			if len(c.Args) > 0 {
				id = c.Args[0]
			}
			return p.dial(ctx, id)
		}),
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "say",
		Help: "speak to the agent",
		Func: run(func(c *ishell.Context) error {
			return p.say(ctx, strings.Join(c.Args, " "))
		}),
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "hold",
		Help: "put the agent on hold",
		Func: run(func(c *ishell.Context) error { return p.orch.RequestHold(ctx) }),
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "resume",
		Help: "take the agent off hold",
		Func: run(func(c *ishell.Context) error { return p.orch.Resume(ctx) }),
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "hangup",
		Help: "end the call",
		Func: run(func(c *ishell.Context) error { return p.orch.HangUp(ctx) }),
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "status",
		Help: "show the call state",
		Func: func(c *ishell.Context) {
			c.Println(p.status())
		},
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "transcript",
		Help: "print the transcript",
		Func: func(c *ishell.Context) {
			for _, turn := range p.orch.Transcript() {
				if line := p.renderTurn(&turn, true); line != "" {
					c.Println(line)
				}
			}
		},
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "agents",
		Help: "list the catalog",
		Func: run(func(c *ishell.Context) error {
			agents, err := p.catalog.ListAgents(ctx)
			if err != nil {
				return err
			}
			for _, a := range agents {
				marker := " "
				if a.ActiveForDialer {
					marker = "*"
				}
				c.Printf("%s %-24s %s\n", marker, a.ID, a.Name)
			}
			return nil
		}),
	})

	shell.NotFound(run(func(c *ishell.Context) error {
		return p.say(ctx, strings.Join(c.RawArgs, " "))
	}))
}

func (p *softphone) dial(ctx context.Context, id string) error {
	if id == "" {
		var err error
		if id, err = p.defaultAgent(ctx); err != nil {
			return err
		}
	}

	a, err := p.catalog.GetAgent(ctx, id)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.agentName = a.Name
	p.mu.Unlock()

	_, err = p.orch.DialAgent(ctx, a)
	return err
}

func (p *softphone) defaultAgent(ctx context.Context) (string, error) {
	agents, err := p.catalog.ListAgents(ctx)
	if err != nil {
		return "", err
	}
	if len(agents) == 0 {
		return "", fmt.Errorf("the catalog is empty")
	}
	// dialer-active agents are listed first
	return agents[0].ID, nil
}

func (p *softphone) say(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if err := p.orch.SendUtterance(ctx, backend.Input{Text: text}); err != nil {
		return err
	}
	p.spin(p.name() + " is thinking")
	return nil
}

func (p *softphone) status() string {
	snap := p.orch.Snapshot()
	if snap.CallID == "" {
		return fmt.Sprintf("State: %s", snap.State)
	}
	line := fmt.Sprintf("State: %s  Call: %s  Agent: %s  Turns: %d", snap.State, snap.CallID, snap.AgentID, len(snap.Transcript))
	if snap.Error != "" {
		line += "\n" + errorColor("Last error: ") + snap.Error
	}
	return line
}

// follow prints events until the channel closes.
func (p *softphone) follow(events <-chan call.Event) {
	for ev := range events {
		p.track(ev)
		if line := p.render(ev); line != "" {
			p.println(line)
		}
	}
}

// track drives the progress spinner from call events.
func (p *softphone) track(ev call.Event) {
	switch ev.Type {
	case call.EventStateChanged:
		switch ev.To {
		case call.StateDialing:
			p.spin("Dialing " + p.name())
		case call.StateRinging:
			p.spin("Ringing")
		default:
			p.stopSpin()
		}
	case call.EventTranscriptAppended:
		if ev.Turn != nil && ev.Turn.Role == call.RoleAgent && ev.Turn.Text != "" {
			p.stopSpin()
		}
	case call.EventCallFailed:
		p.stopSpin()
	}
}

func (p *softphone) render(ev call.Event) string {
	switch ev.Type {
	case call.EventStateChanged:
		return stateColor(fmt.Sprintf("[%s]", ev.To))
	case call.EventTranscriptAppended:
		return p.renderTurn(ev.Turn, false)
	case call.EventCallFailed:
		msg := ev.Error
		if ev.Code != "" {
			msg = fmt.Sprintf("%s (%s)", msg, ev.Code)
		}
		return errorColor("Call failed: ") + msg
	default:
		return ""
	}
}

// renderTurn formats a transcript turn. Caller turns are only shown when
// replaying, since the caller typed them.
func (p *softphone) renderTurn(t *call.Turn, replay bool) string {
	if t == nil {
		return ""
	}

	switch {
	case t.ToolCall != nil:
		args, _ := json.Marshal(t.ToolCall.Arguments)
		return toolColor(fmt.Sprintf("  -> %s %s", t.ToolCall.Name, args))
	case t.ToolResult != nil:
		if t.ToolResult.OK {
			return toolColor(fmt.Sprintf("  <- %s ok", t.ToolResult.Name))
		}
		return toolColor(fmt.Sprintf("  <- %s failed: %s", t.ToolResult.Name, t.ToolResult.Error))
	case t.Role == call.RoleCaller:
		if !replay {
			return ""
		}
		text := t.Text
		if text == "" {
			text = fmt.Sprintf("(%d bytes of audio)", t.AudioBytes)
		}
		return callerColor("You:") + "\n" + p.wrap(text)
	case t.Text != "":
		return agentColor(p.name()+":") + "\n" + p.wrap(t.Text)
	default:
		return ""
	}
}

func (p *softphone) wrap(text string) string {
	return indent.String(wordwrap.String(text, p.width-2), 2)
}

func (p *softphone) name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.agentName
}

func (p *softphone) spin(suffix string) {
	if p.spinner == nil {
		return
	}
	p.spinner.Lock()
	p.spinner.Suffix = " " + suffix
	p.spinner.Unlock()
	if !p.spinner.Active() {
		p.spinner.Start()
	}
}

func (p *softphone) stopSpin() {
	if p.spinner == nil {
		return
	}
	p.spinner.Stop()
}
