package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hc1node/forkmonitor/internal/entity"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// DefaultNodes are the public nodes monitored if none are configured.
var DefaultNodes = []string{
	"hc1=wss://my.hc1node.com:35998",
	"zenonhub=wss://node.zenonhub.io:35998",
	"atsocy=wss://node.atsocy.com:35998",
}

// envBindings maps configuration keys onto their historical environment names.
// Every other key is also settable as FORKMONITOR_<KEY> with dots replaced by
// underscores.
var envBindings = map[string]string{
	"api.addr":  "API_HOST",
	"api.port":  "API_PORT",
	"api.cors":  "CORS_ORIGINS",
	"log.level": "LOG_LEVEL",
	"log.file":  "LOG_FILE",
}

type Config struct {
	App
	Poll
	API
	NSQ
	Log
}

// Configuration of the monitor itself
type App struct {
	Version string
	Nodes   []entity.NodeIdentity
}

// Configuration of the polling loops and node state tracking
type Poll struct {
	Interval    time.Duration // Pause between two polls of the same node
	Timeout     time.Duration // Upper bound on a single node query (Interval if zero)
	Jitter      time.Duration // Random extra pause to spread out queries
	StaleGrace  time.Duration // Time a higher height must be known before lower ones go stale
	HistorySize int           // Momentum records retained per node
	Report      time.Duration // Interval of the status table log dump (0 = disabled)
}

// Address, port and browser access of the REST API
type API struct {
	Host        string
	Port        int
	CORSOrigins []string
}

// Configuration of the snapshot broadcast
type NSQ struct {
	Addr    string // Remote nsqd to publish to
	Topic   string // Topic snapshots are published on
	Embed   bool   // Run an nsqd inside the monitor instead of using Addr
	Datadir string // Data folder of the embedded nsqd
	Bind    string // Listener of the embedded nsqd
	Lookupd string // Optional nsqlookupd the embedded nsqd announces to
}

// Enabled reports whether snapshots should be broadcast at all.
func (n NSQ) Enabled() bool {
	return n.Embed || n.Addr != ""
}

type Log struct {
	Level string
	File  string
}

// RegisterFlags adds every configuration flag to the command.
func RegisterFlags(cmd *cobra.Command) {
	flags := cmd.Flags()

	flags.String("config", "", "YAML or TOML file to load the configuration from")
	flags.StringSlice("node", DefaultNodes, "Node to monitor as name=url, url may be http(s) or ws(s) (repeatable)")

	flags.Duration("poll.interval", 5*time.Second, "Pause between two polls of the same node")
	flags.Duration("poll.timeout", 0, "Upper bound on a single node query (0 = poll.interval)")
	flags.Duration("poll.jitter", 500*time.Millisecond, "Random extra pause added to every poll interval")
	flags.Duration("stale.grace", 0, "Time a higher height must be known before lower heights are marked stale")
	flags.Int("history.size", 10, "Momentum records retained per node")
	flags.Duration("report.interval", time.Minute, "Interval of the status table log dump (0 = disabled)")

	flags.String("api.addr", "0.0.0.0", "Listener interface of the REST API")
	flags.Int("api.port", 8000, "Listener port of the REST API")
	flags.StringSlice("api.cors", []string{"*"}, "Browser origins allowed to query the REST API")

	flags.String("nsq.addr", "", "nsqd to broadcast snapshots to (disabled if empty)")
	flags.String("nsq.topic", entity.DefaultTopic, "NSQ topic snapshots are broadcast on")
	flags.Bool("nsq.embed", false, "Run an embedded nsqd to broadcast snapshots through")
	flags.String("nsq.datadir", filepath.Join(os.TempDir(), "forkmonitor", "nsqd"), "Data folder of the embedded nsqd")
	flags.String("nsq.bind", "127.0.0.1:4150", "Listener address of the embedded nsqd")
	flags.String("nsq.lookupd", "", "nsqlookupd TCP address the embedded nsqd announces to")

	flags.String("log.level", "info", "Log level (trace, debug, info, warn, error, crit)")
	flags.String("log.file", "", "File to additionally write rotated logs into")
}

func NewConfig(cmd *cobra.Command, args []string) (*Config, error) {
	v := viper.New()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	v.SetEnvPrefix("forkmonitor")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}
	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	nodes, err := loadNodes(cmd, v)
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		App: App{
			Version: "0.1",
			Nodes:   nodes,
		},
		Poll: Poll{
			Interval:    v.GetDuration("poll.interval"),
			Timeout:     v.GetDuration("poll.timeout"),
			Jitter:      v.GetDuration("poll.jitter"),
			StaleGrace:  v.GetDuration("stale.grace"),
			HistorySize: v.GetInt("history.size"),
			Report:      v.GetDuration("report.interval"),
		},
		API: API{
			Host:        v.GetString("api.addr"),
			Port:        v.GetInt("api.port"),
			CORSOrigins: splitList(v.GetStringSlice("api.cors")),
		},
		NSQ: NSQ{
			Addr:    v.GetString("nsq.addr"),
			Topic:   v.GetString("nsq.topic"),
			Embed:   v.GetBool("nsq.embed"),
			Datadir: v.GetString("nsq.datadir"),
			Bind:    v.GetString("nsq.bind"),
			Lookupd: v.GetString("nsq.lookupd"),
		},
		Log: Log{
			Level: v.GetString("log.level"),
			File:  v.GetString("log.file"),
		},
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = cfg.Interval
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadNodes assembles the node list from the command line, falling back to the
// config file and finally to the defaults. Each node's endpoint can still be
// overridden through a <NAME>_NODE_URL environment variable.
func loadNodes(cmd *cobra.Command, v *viper.Viper) ([]entity.NodeIdentity, error) {
	var nodes []entity.NodeIdentity
	if !cmd.Flags().Changed("node") && v.IsSet("nodes") {
		if err := v.UnmarshalKey("nodes", &nodes); err != nil {
			return nil, fmt.Errorf("invalid nodes in config file: %w", err)
		}
	} else {
		for _, entry := range splitList(v.GetStringSlice("node")) {
			node, err := parseNode(entry)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, node)
		}
	}
	for i, node := range nodes {
		key := "endpoint." + node.Name
		env := strings.ToUpper(strings.ReplaceAll(node.Name, "-", "_")) + "_NODE_URL"
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
		if endpoint := v.GetString(key); endpoint != "" {
			nodes[i].Endpoint = endpoint
		}
	}
	return nodes, nil
}

func parseNode(entry string) (entity.NodeIdentity, error) {
	name, endpoint, ok := strings.Cut(entry, "=")
	if !ok {
		return entity.NodeIdentity{}, fmt.Errorf("invalid node %q, want name=url", entry)
	}
	return entity.NodeIdentity{
		Name:     strings.TrimSpace(name),
		Endpoint: strings.TrimSpace(endpoint),
	}, nil
}

// splitList flattens comma separated entries, as delivered by environment
// variables, into a single list.
func splitList(items []string) []string {
	var list []string
	for _, item := range items {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				list = append(list, part)
			}
		}
	}
	return list
}

// Validate checks the configuration for anything the monitor cannot run with.
func (c *Config) Validate() error {
	if len(c.Nodes) == 0 {
		return errors.New("no nodes configured")
	}
	names := make(map[string]struct{}, len(c.Nodes))
	for _, node := range c.Nodes {
		if node.Name == "" {
			return fmt.Errorf("node with endpoint %q has no name", node.Endpoint)
		}
		if _, ok := names[node.Name]; ok {
			return fmt.Errorf("duplicate node name %q", node.Name)
		}
		names[node.Name] = struct{}{}

		u, err := url.Parse(node.Endpoint)
		if err != nil {
			return fmt.Errorf("node %s: invalid endpoint: %w", node.Name, err)
		}
		switch u.Scheme {
		case "http", "https", "ws", "wss":
		default:
			return fmt.Errorf("node %s: unsupported endpoint scheme %q", node.Name, u.Scheme)
		}
		if u.Host == "" {
			return fmt.Errorf("node %s: endpoint %q has no host", node.Name, node.Endpoint)
		}
	}
	if c.Interval <= 0 {
		return fmt.Errorf("invalid poll interval %v", c.Interval)
	}
	if c.Timeout < 0 || c.Jitter < 0 || c.StaleGrace < 0 || c.Report < 0 {
		return errors.New("durations must not be negative")
	}
	if c.HistorySize < 1 {
		return fmt.Errorf("invalid history size %d", c.HistorySize)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid API port %d", c.Port)
	}
	return nil
}
