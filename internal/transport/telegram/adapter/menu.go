package adapter

import (
	"context"
	"hash/fnv"

	tele "gopkg.in/telebot.v4"

	kit "fooddates/internal/transport"
	logx "fooddates/pkg/logx"
)

// Bot API limits for setMyCommands.
const (
	maxMenuCommands   = 100
	maxMenuDescLength = 256
)

// UpdateMenuCommands publishes the "/" command list. The API is only called
// when the list differs from the last one published.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	menu := botCommands(cmds)
	sum := menuSum(menu)

	a.menuMu.Lock()
	defer a.menuMu.Unlock()
	if sum == a.menuSum {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := a.bot.SetCommands(menu); err != nil {
		return apiError(err)
	}
	a.menuSum = sum
	a.log.Info("command menu published", logx.Int("commands", len(menu)))
	return nil
}

func menuSum(menu []tele.Command) uint64 {
	h := fnv.New64a()
	for _, c := range menu {
		_, _ = h.Write([]byte(c.Text + "\x00" + c.Description + "\x00"))
	}
	return h.Sum64()
}

// botCommands drops unnamed entries and applies the Bot API limits.
func botCommands(cmds []kit.BotCommand) []tele.Command {
	out := make([]tele.Command, 0, min(len(cmds), maxMenuCommands))
	for _, c := range cmds {
		if len(out) == maxMenuCommands {
			break
		}
		if c.Command == "" {
			continue
		}
		desc := c.Description
		if desc == "" {
			desc = c.Command
		}
		if len(desc) > maxMenuDescLength {
			desc = desc[:maxMenuDescLength]
		}
		out = append(out, tele.Command{Text: c.Command, Description: desc})
	}
	return out
}
