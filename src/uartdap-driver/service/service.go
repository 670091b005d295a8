// Package service lets cmd/uartdap install and run as a background OS
// service, so the debug bridge survives user logout on a lab machine.
package service

import (
	"context"

	"github.com/kardianos/service"
	"github.com/sirupsen/logrus"
)

// Runner is the long-running body of the service: it should block until
// ctx is cancelled or it fails.
type Runner func(ctx context.Context) error

type program struct {
	runner Runner
	log    *logrus.Entry
	cancel context.CancelFunc
}

func (p *program) Start(s service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	go func() {
		if err := p.runner(ctx); err != nil {
			p.log.WithError(err).Error("service runner exited with error")
		}
	}()

	return nil
}

func (p *program) Stop(s service.Service) error {
	if p.cancel != nil {
		p.cancel()
	}
	return nil
}

// Control either runs runner as the named OS service in the foreground
// (action == "") or performs a service control action ("install",
// "uninstall", "start", "stop", "restart").
func Control(log *logrus.Entry, name, displayName, description, action string, runner Runner) error {
	config := &service.Config{
		Name:        name,
		DisplayName: displayName,
		Description: description,
	}

	prg := &program{runner: runner, log: log}
	svc, err := service.New(prg, config)
	if err != nil {
		return err
	}

	if action != "" {
		return service.Control(svc, action)
	}
	return svc.Run()
}
