package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/javanstorm/stasis/internal/transport"
	"github.com/javanstorm/stasis/pkg/guestagent"
)

func (a *app) newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the guest filesystems are frozen",
		Long:  `Ask the guest agent for the current filesystem freeze status.`,
		Args:  cobra.NoArgs,
		RunE:  a.runStatus,
	}
}

func (a *app) runStatus(cmd *cobra.Command, args []string) error {
	ep, err := a.cfg.AgentEndpoint()
	if err != nil {
		return err
	}

	conn, err := transport.Dial(cmd.Context(), ep, transport.Eager, a.logger)
	if err != nil {
		return fmt.Errorf("connect: guest agent: %w", err)
	}
	defer conn.Close()

	status, err := guestagent.NewQGA(conn).FreezeStatus()
	if err != nil {
		return err
	}

	a.logger.Debug().Str("endpoint", ep.String()).Str("status", string(status)).Msg("Freeze status")
	fmt.Fprintf(cmd.OutOrStdout(), "Guest filesystems: %s\n", status)
	return nil
}
