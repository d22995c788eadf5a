package queue

import (
	"context"

	"github.com/postalcore/postal/framework/log"
	"github.com/postalcore/postal/framework/module"
	"github.com/postalcore/postal/internal/config"
	"github.com/prometheus/client_golang/prometheus"
)

// Mod wraps Engine as a module.Module, configured via a block like:
//
//	queue local {
//	    location /var/lib/postal/queue
//	    max_memory 256M
//	}
type Mod struct {
	instName string
	log      log.Logger

	location  string
	maxMemory int64

	*Engine
}

// NewModule is the module.FuncNewModule factory registered under the
// "queue" name; it builds a bare, uninitialized Mod for the config loader
// to call Init on.
func NewModule(_, instName string, _, _ []string) (module.Module, error) {
	return &Mod{instName: instName, log: log.Logger{Name: "queue"}}, nil
}

func (mod *Mod) Init(cfg *config.Map) error {
	var maxMemStr string
	cfg.String("location", true, "", &mod.location)
	cfg.String("max_memory", false, "256M", &maxMemStr)
	if err := cfg.Process(); err != nil {
		return err
	}

	maxMemory, err := parseByteSize(maxMemStr)
	if err != nil {
		return config.NodeErr(cfg.Block, "queue: max_memory: %v", err)
	}
	mod.maxMemory = maxMemory

	eng, err := New(mod.location, mod.maxMemory, mod.log)
	if err != nil {
		return err
	}
	mod.Engine = eng
	mod.Engine.Start(context.Background())

	prometheus.MustRegister(Collector{Name: mod.instName, Engine: mod.Engine})

	return nil
}

func (mod *Mod) Close() error {
	return mod.Engine.Close()
}

func (mod *Mod) Name() string         { return "queue" }
func (mod *Mod) InstanceName() string { return mod.instName }

func init() {
	module.Register("queue", NewModule)
}
