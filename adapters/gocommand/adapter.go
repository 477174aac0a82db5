package gocommand

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
)

// RegistryAdapter keeps the payments commands and queries in a go-command
// registry alongside their dispatcher subscriptions.
type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

// messageType returns the bus key for T. Payment messages must declare one.
func messageType[T any]() (string, error) {
	var msg T
	if _, ok := any(msg).(command.Message); !ok {
		return "", fmt.Errorf("gocommand: %T must implement Type() string", msg)
	}
	name := strings.TrimSpace(command.GetMessageType(msg))
	if name == "" {
		return "", fmt.Errorf("gocommand: %T has an empty message type", msg)
	}
	return name, nil
}

// RegisterAndSubscribe registers cmd and subscribes it to the global
// dispatcher. The subscription is released if registration fails.
func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	name, err := messageType[T]()
	if err != nil {
		return nil, err
	}
	subscription := commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.registry.RegisterCommand(cmd); err != nil {
		subscription.Unsubscribe()
		return nil, fmt.Errorf("gocommand: register %s: %w", name, err)
	}
	return subscription, nil
}

func RegisterAndSubscribeQuery[T any, R any](
	adapter *RegistryAdapter,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	name, err := messageType[T]()
	if err != nil {
		return nil, err
	}
	subscription := commanddispatcher.SubscribeQuery(qry, runnerOpts...)
	if err := adapter.registry.RegisterCommand(qry); err != nil {
		subscription.Unsubscribe()
		return nil, fmt.Errorf("gocommand: register %s: %w", name, err)
	}
	return subscription, nil
}
