package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/EthanShoeDev/fressh/sshclient"
)

func newConnectCmd() *cobra.Command {
	var (
		host     string
		port     uint16
		username string
		password string
		keyFile  string
	)

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect to a host and open an interactive shell",
		RunE: func(cmd *cobra.Command, args []string) error {
			security := sshclient.PasswordAuth(password)
			if keyFile != "" {
				pemBytes, err := os.ReadFile(keyFile)
				if err != nil {
					return fmt.Errorf("reading key file: %w", err)
				}
				security = sshclient.KeyAuth(string(pemBytes))
			}

			ctx := cmd.Context()
			conn, err := sshclient.Connect(ctx, sshclient.ConnectOptions{
				ConnectionDetails: sshclient.ConnectionDetails{
					Host:     host,
					Port:     port,
					Username: username,
					Security: security,
				},
				OnProgress: sshclient.ProgressCallbackFunc(func(e sshclient.ProgressEvent) {
					logrus.Debugf("connect progress: %d", e)
				}),
				OnDisconnected: sshclient.DisconnectedCallbackFunc(func(id string) {
					logrus.Infof("disconnected: %s", id)
				}),
			})
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer conn.Disconnect()

			return runInteractiveShell(ctx, conn)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "remote host (required)")
	cmd.Flags().Uint16Var(&port, "port", 22, "remote port")
	cmd.Flags().StringVar(&username, "user", "", "remote username (required)")
	cmd.Flags().StringVar(&password, "password", "", "password auth")
	cmd.Flags().StringVar(&keyFile, "key", "", "path to an OpenSSH PEM private key; overrides --password")
	cmd.MarkFlagRequired("host")
	cmd.MarkFlagRequired("user")

	return cmd
}

// runInteractiveShell puts the local terminal into raw mode, opens a
// pty-backed shell on conn, and pumps stdin/stdout until the shell
// closes or the local terminal is interrupted.
func runInteractiveShell(ctx context.Context, conn *sshclient.Connection) error {
	cols, rows := termSize()

	closed := make(chan uint32, 1)
	shell, err := conn.StartShell(ctx, sshclient.StartShellOptions{
		Term:         sshclient.TerminalXterm256,
		TerminalSize: sshclient.TerminalSize{Cols: cols, Rows: rows},
		OnClosed: sshclient.ShellClosedCallbackFunc(func(channelID uint32) {
			closed <- channelID
		}),
	})
	if err != nil {
		return fmt.Errorf("start shell: %w", err)
	}

	stdinFd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(stdinFd)
	if err != nil {
		return fmt.Errorf("entering raw mode: %w", err)
	}
	defer term.Restore(stdinFd, oldState)

	shell.AddListener(sshclient.ShellListenerFunc(func(event sshclient.ShellEvent) {
		if ce, ok := event.(sshclient.ChunkEvent); ok {
			if ce.Stream == sshclient.StreamStderr {
				os.Stderr.Write(ce.Bytes)
			} else {
				os.Stdout.Write(ce.Bytes)
			}
		}
	}), sshclient.ListenerOptions{Cursor: sshclient.CursorLive()})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go pumpStdin(shell)

	select {
	case <-closed:
	case <-sigCh:
		_ = shell.Close()
	case <-ctx.Done():
		_ = shell.Close()
	}
	return nil
}

func pumpStdin(shell *sshclient.Shell) {
	buf := make([]byte, 4096)
	for {
		n, err := os.Stdin.Read(buf)
		if n > 0 {
			if sendErr := shell.SendData(buf[:n]); sendErr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// termSize reports the local terminal's size, falling back to 80x24
// when stdout isn't a terminal (e.g. piped output in tests).
func termSize() (cols, rows uint32) {
	w, h, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 || h <= 0 {
		return 80, 24
	}
	return uint32(w), uint32(h)
}
