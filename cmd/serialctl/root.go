package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/lk2023060901/garden-serial/application"
	"github.com/lk2023060901/garden-serial/pkg/serial"
)

const Version = "0.3.0"

type cli struct {
	configPath string
	app        *application.Application
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "serialctl",
		Short: "inspect and produce garden-serial payloads and snapshots",
		Long: fmt.Sprintf(`serialctl (v%s)

Decodes object streams written by garden-serial into JSON, encodes JSON
documents into payloads and inspects descriptor snapshots, without the
original Go types.`, Version),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			c.app = application.New(c.configPath)
			return c.app.Run()
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default ./config.yaml, env GARDEN_CONFIG_FILE_PATH)")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newDecodeCmd(c))
	root.AddCommand(newEncodeCmd(c))
	root.AddCommand(newSnapshotCmd(c))
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of serialctl",
		// 不需要加载配置
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "serialctl v%s (snapshot format %s)\n", Version, serial.SnapshotVersion)
		},
	}
}

// openInput "-" 表示标准输入。
func openInput(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	return os.Open(path)
}
