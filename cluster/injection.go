package cluster

import (
	"context"
	"encoding/json"

	"eproxy/command"
	"eproxy/convert"
	"eproxy/recovery"
)

var _ recovery.Handler = (*Injection)(nil)

// Injection answers with the JSON document configured on the command.
type Injection struct {
	commands  command.Provider
	converter convert.Converter
}

func NewInjection(deps Dependencies) *Injection {
	return &Injection{commands: deps.Commands, converter: deps.Converter}
}

func (i *Injection) Invoke(ctx context.Context, call *recovery.Call) (any, error) {
	cmd, err := i.commands.GetCommand(ctx, call.ServiceID)
	if err != nil {
		return nil, err
	}
	if cmd.Injection == "" {
		return nil, nil
	}
	typ := call.ReturnType
	if call.Raw || typ == nil {
		typ = convert.RawType
	}
	return i.converter.Convert(json.RawMessage(cmd.Injection), typ)
}
