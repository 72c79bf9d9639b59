// Package sh provides the interactive shell of gpioctl.
package sh

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"strconv"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/gpionode/pkg/client"
	env "github.com/robotalks/gpionode/pkg/env/client"
	"github.com/robotalks/gpionode/pkg/heartbeat"
	"github.com/robotalks/gpionode/pkg/registry"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoConnect bool

	Shell  *ishell.Shell
	Config *env.Config
	Conn   *client.Conn
}

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "
	commandTimeout    = 2 * time.Second
	defaultWatchTime  = 10 * time.Second
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&DiscoverCmd,
		&ConnectCmd,
		&DisconnectCmd,
		&EchoCmd,
		&SetCmd,
		&ClearCmd,
		&FotaCmd,
		&NodesCmd,
		&WatchCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *env.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeConnected wraps command func requires a connection.
func MustBeConnected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Conn == nil {
			c.Err(fmt.Errorf("not connected"))
			return
		}
		fn(c)
	}
}

// FormatNode prints a discovered node for display.
func FormatNode(node client.Node) string {
	return fmt.Sprintf("%s %s", node.CommandAddr(), node.Status)
}

// FormatInfo prints a registered node for display.
func FormatInfo(info registry.NodeInfo) string {
	s := info.ID
	if info.Meta.Firmware != "" {
		s += " fw=" + info.Meta.Firmware
	}
	if info.Meta.Description != "" {
		s += ": " + info.Meta.Description
	}
	return s
}

// ParseByte parses a byte in decimal, 0x hex, 0o octal or 0b binary.
func ParseByte(s string) (byte, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid byte %q", s)
	}
	return byte(v), nil
}

// CommandAddr appends the default command port if addr has none.
func CommandAddr(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, strconv.Itoa(client.DefaultPort))
}

// WithAutoConnect sets AutoConnect.
func (s *Shell) WithAutoConnect(en bool) *Shell {
	s.AutoConnect = en
	return s
}

// Print prints v as JSON in JSON mode, otherwise the text.
func (s *Shell) Print(c *ishell.Context, v interface{}, text string) {
	if s.OutputJSON {
		out, err := json.Marshal(v)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	c.Println(text)
}

// Discover probes nodes.
func (s *Shell) Discover() ([]client.Node, error) {
	return s.Config.NewDiscoverer().Discover(context.Background())
}

// SelectNode discovers nodes and asks for a choice.
func (s *Shell) SelectNode() (*client.Node, error) {
	nodes, err := s.Discover()
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	var index int
	if len(nodes) > 1 {
		if !s.Interactive {
			return nil, fmt.Errorf("more than 1 nodes discovered in non-interactive mode")
		}
		items := make([]string, len(nodes))
		for n, node := range nodes {
			items[n] = FormatNode(node)
		}
		index = s.Shell.MultiChoice(items, "Which one to connect?")
		if index < 0 {
			return nil, nil
		}
	}
	return &nodes[index], nil
}

// Connect connects the node at addr.
func (s *Shell) Connect(addr string) error {
	addr = CommandAddr(addr)
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	conn, err := client.Dial(ctx, addr)
	if err != nil {
		return err
	}
	s.Disconnect()
	s.Conn = conn
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", addr))
	return nil
}

// Disconnect disconnects current node.
func (s *Shell) Disconnect() {
	if s.Conn != nil {
		s.Conn.Close()
		s.Conn = nil
		s.Shell.SetPrompt(unconnectedPrompt)
	}
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.AutoConnect && s.Config.Addr != "" {
		if s.Interactive {
			s.Shell.Printf("Connecting %s ...\n", s.Config.Addr)
		}
		if err := s.Connect(s.Config.Addr); err != nil {
			log.Fatalf("connect %q failed: %v", s.Config.Addr, err)
		}
	}
	defer s.Disconnect()

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

func maskCmd(set bool) func(c *ishell.Context) {
	return MustBeConnected(func(c *ishell.Context) {
		if len(c.Args) != 1 {
			c.Err(fmt.Errorf("MASK expected"))
			return
		}
		mask, err := ParseByte(c.Args[0])
		if err != nil {
			c.Err(err)
			return
		}
		s := ShellFrom(c)
		if set {
			err = s.Conn.Set(mask)
		} else {
			err = s.Conn.Clear(mask)
		}
		if err != nil {
			c.Err(err)
			return
		}
		s.Print(c, map[string]interface{}{"ok": true}, "OK")
	})
}

var (
	// DiscoverCmd probes nodes on the heartbeat port.
	DiscoverCmd = ishell.Cmd{
		Name:    "discover",
		Aliases: []string{"list", "l"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			nodes, err := s.Discover()
			if err != nil {
				c.Err(err)
				return
			}
			if s.OutputJSON {
				type nodeJSON struct {
					Addr     string `json:"addr"`
					IP       string `json:"ip"`
					MAC      string `json:"mac"`
					Firmware string `json:"firmware"`
				}
				items := []nodeJSON{}
				for _, node := range nodes {
					items = append(items, nodeJSON{
						Addr:     node.CommandAddr(),
						IP:       node.Status.IP.String(),
						MAC:      node.Status.MAC.String(),
						Firmware: heartbeat.FormatVersion(node.Status.Version),
					})
				}
				s.Print(c, items, "")
				return
			}
			if len(nodes) == 0 {
				c.Println("No nodes found")
				return
			}
			for _, node := range nodes {
				c.Println(FormatNode(node))
			}
		},
	}

	// ConnectCmd connects a node.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "[ADDR]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			var addr string
			if len(c.Args) >= 1 {
				addr = c.Args[0]
			} else {
				node, err := s.SelectNode()
				if err != nil {
					c.Err(err)
					return
				}
				if node == nil {
					c.Err(fmt.Errorf("no node discovered"))
					return
				}
				addr = node.CommandAddr()
			}
			if err := s.Connect(addr); err != nil {
				c.Err(err)
			}
		},
	}

	// DisconnectCmd disconnects current node.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}

	// EchoCmd sends bytes and waits for them back.
	EchoCmd = ishell.Cmd{
		Name: "echo",
		Help: "BYTES...",
		Func: MustBeConnected(func(c *ishell.Context) {
			data := make([]byte, 0, len(c.Args))
			for _, arg := range c.Args {
				b, err := ParseByte(arg)
				if err != nil {
					c.Err(err)
					return
				}
				data = append(data, b)
			}
			s := ShellFrom(c)
			ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
			defer cancel()
			start := time.Now()
			if err := s.Conn.Echo(ctx, data...); err != nil {
				c.Err(err)
				return
			}
			rtt := time.Since(start)
			s.Print(c, map[string]interface{}{"ok": true, "rtt": rtt.String()}, fmt.Sprintf("OK %s", rtt))
		}),
	}

	// SetCmd drives pins HIGH.
	SetCmd = ishell.Cmd{
		Name: "set",
		Help: "MASK",
		Func: maskCmd(true),
	}

	// ClearCmd drives pins LOW.
	ClearCmd = ishell.Cmd{
		Name: "clear",
		Help: "MASK",
		Func: maskCmd(false),
	}

	// FotaCmd triggers a firmware upgrade.
	FotaCmd = ishell.Cmd{
		Name: "fota",
		Help: "",
		Func: MustBeConnected(func(c *ishell.Context) {
			s := ShellFrom(c)
			if err := s.Conn.TriggerFota(); err != nil {
				c.Err(err)
				return
			}
			s.Print(c, map[string]interface{}{"ok": true}, "OK")
		}),
	}

	// NodesCmd lists nodes in the registry.
	NodesCmd = ishell.Cmd{
		Name: "nodes",
		Help: "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			connector, err := s.Config.NewConnector()
			if err != nil {
				c.Err(err)
				return
			}
			infoList, err := connector.Discover(context.Background())
			if err != nil {
				c.Err(err)
				return
			}
			if s.OutputJSON {
				if len(infoList) == 0 {
					// in case infoList is nil, make it empty slice.
					infoList = []registry.NodeInfo{}
				}
				s.Print(c, infoList, "")
				return
			}
			if len(infoList) == 0 {
				c.Println("No nodes registered")
				return
			}
			for _, info := range infoList {
				c.Println(FormatInfo(info))
			}
		},
	}
)

// WatchCmd prints status updates from the registry.
var WatchCmd = ishell.Cmd{
	Name: "watch",
	Help: "[DURATION]",
	Func: func(c *ishell.Context) {
		s := ShellFrom(c)
		dur := defaultWatchTime
		if len(c.Args) > 0 {
			d, err := time.ParseDuration(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			dur = d
		}
		connector, err := s.Config.NewConnector()
		if err != nil {
			c.Err(err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), dur)
		defer cancel()
		err = connector.Watch(ctx, func(id string, st *registry.NodeStatus) {
			s.Print(c, map[string]interface{}{"id": id, "status": st}, id+": "+st.String())
		})
		if err != nil && err != context.DeadlineExceeded {
			c.Err(err)
		}
	},
}

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(env.NewConfig()).WithAutoConnect(true).Run(flag.Args()...)
}
