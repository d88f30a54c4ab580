package watchui

import (
	"context"
	stderrors "errors"

	"jspack/internal/core/ports"

	tea "github.com/charmbracelet/bubbletea"
)

// Run drives the watch daemon behind the terminal view. Quitting the view
// stops the daemon; a daemon error ends the view.
func Run(ctx context.Context, svc ports.WatchService, root string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewModel(root), tea.WithAltScreen(), tea.WithContext(ctx))
	svc.Subscribe(func(u ports.WatchUpdate) {
		p.Send(UpdateMsg(u))
	})

	daemonErr := make(chan error, 1)
	go func() {
		err := svc.Run(ctx)
		if err != nil {
			p.Quit()
		}
		daemonErr <- err
	}()

	_, uiErr := p.Run()
	cancel()
	err := <-daemonErr
	if err != nil {
		return err
	}
	if uiErr != nil && !stderrors.Is(uiErr, tea.ErrProgramKilled) {
		return uiErr
	}
	return nil
}
