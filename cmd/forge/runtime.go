package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"skillforge/internal/config"
	"skillforge/internal/controller"
	"skillforge/internal/ledger"
	"skillforge/internal/logging"
	"skillforge/internal/reasoning"
	"skillforge/internal/safety"
	"skillforge/internal/tactile"
	"skillforge/internal/templates"
)

// forge holds the components wired from one Config.
type forge struct {
	cfg       *config.Config
	gate      *safety.Gate
	ledger    *ledger.Ledger
	registry  *templates.Registry
	assembler *templates.Assembler

	// Set by withSandbox and withClient.
	sandbox *tactile.Sandbox
	audit   *tactile.AuditLogger
	client  reasoning.Client
}

// openForge builds the components every command needs: the gate, the ledger
// and the template registry. The workspace root is created first so the gate
// can resolve it.
func openForge(c *config.Config) (*forge, error) {
	timer := logging.StartTimer(logging.CategoryBoot, "openForge")
	defer timer.Stop()

	root := c.Workspace.RootPath()
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	gate, err := safety.NewGate(root, c.Safety)
	if err != nil {
		return nil, err
	}

	l, err := ledger.Open(c.Workspace.LedgerPath(),
		ledger.WithMaxFailures(c.Ledger.MaxFailures),
		ledger.WithExcerptBytes(c.Ledger.CodeExcerptBytes))
	if err != nil {
		return nil, err
	}

	registry, err := templates.NewDefaultRegistry()
	if err != nil {
		return nil, err
	}
	if n, err := templates.LoadDir(registry, c.Workspace.TemplatesPath()); err != nil {
		return nil, err
	} else if n > 0 {
		logging.Boot("Loaded %d user template(s) from %s", n, c.Workspace.TemplatesPath())
	}

	return &forge{
		cfg:       c,
		gate:      gate,
		ledger:    l,
		registry:  registry,
		assembler: templates.NewAssembler(registry, gate),
	}, nil
}

// withSandbox builds the executor, with JSONL auditing when configured.
func (f *forge) withSandbox() error {
	exec := f.cfg.Execution
	sc := tactile.DefaultConfig(f.cfg.Workspace.RootPath(), f.cfg.Workspace.ExecPath())
	if exec.Interpreter != "" {
		sc.Interpreter = exec.Interpreter
		sc.InterpreterArgs = exec.InterpreterArgs
	}
	if exec.FileExtension != "" {
		sc.FileExtension = exec.FileExtension
	}
	if t := exec.GetTimeout(); t > 0 {
		sc.Timeout = t
	}
	if exec.SearchPath != "" {
		sc.SearchPath = exec.SearchPath
	}
	if exec.MaxOutputBytes > 0 {
		sc.MaxOutputBytes = exec.MaxOutputBytes
	}
	sc.ExtraEnv = exec.ExtraEnv

	sb, err := tactile.NewSandbox(sc)
	if err != nil {
		return err
	}

	if exec.AuditLog != "" {
		path := exec.AuditLog
		if !filepath.IsAbs(path) {
			path = filepath.Join(f.cfg.Workspace.RootPath(), path)
		}
		audit := tactile.NewAuditLogger()
		if err := audit.EnableFileLogging(path); err != nil {
			return err
		}
		sb.SetAuditCallback(audit.Log)
		f.audit = audit
	}

	f.sandbox = sb
	return nil
}

// withClient builds the reasoning client and checks its backend when it can.
func (f *forge) withClient(ctx context.Context) error {
	client, err := reasoning.NewClient(ctx, f.cfg.Reasoning)
	if err != nil {
		return err
	}
	if hc, ok := client.(reasoning.HealthChecker); ok {
		if err := hc.Health(ctx); err != nil {
			logging.BootWarn("Reasoning backend not healthy: %v", err)
		}
	}
	f.client = client
	return nil
}

// controller wires a Controller from the opened components.
func (f *forge) controller(ctx context.Context) (*controller.Controller, error) {
	if f.sandbox == nil {
		if err := f.withSandbox(); err != nil {
			return nil, err
		}
	}
	if f.client == nil {
		if err := f.withClient(ctx); err != nil {
			return nil, err
		}
	}
	return controller.New(f.cfg, controller.Deps{
		Gate:      f.gate,
		Executor:  f.sandbox,
		Ledger:    f.ledger,
		Client:    f.client,
		Assembler: f.assembler,
	})
}

func (f *forge) Close() {
	if f.audit == nil {
		return
	}
	m := f.audit.Metrics()
	logging.SandboxDebug("Sandbox runs: started=%d succeeded=%d killed=%d errors=%d",
		m.Started, m.Succeeded, m.Killed, m.Errors)
	if err := f.audit.Close(); err != nil {
		logging.SandboxWarn("Failed to close audit log: %v", err)
	}
}
