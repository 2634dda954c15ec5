//go:build !tray

package tray

import "context"

const Available = false

func (a *App) Run(ctx context.Context, mon Monitor, notifications bool) error {
	return ErrUnavailable
}
