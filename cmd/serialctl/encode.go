package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lk2023060901/garden-serial/pkg/log"
	"github.com/lk2023060901/garden-serial/pkg/serial"
)

func newEncodeCmd(c *cli) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "encode <json|->",
		Short: "Encode a JSON document into a payload",
		Long: `Parse a JSON document and write it as a single Marshal payload. Objects become
map[string]any, arrays []any, integers int64 and other numbers float64, so the
output can be read back with decode or Repository.Unmarshal.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := openInput(cmd, args[0])
			if err != nil {
				return err
			}
			defer in.Close()
			doc, err := io.ReadAll(in)
			if err != nil {
				return err
			}
			v, err := serial.FromJSON(doc)
			if err != nil {
				return err
			}
			data, err := c.app.Repository().Marshal(v)
			if err != nil {
				return err
			}
			log.Debug("json encoded", zap.Int("input", len(doc)), zap.Int("output", len(data)))

			if outPath == "" || outPath == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return os.WriteFile(outPath, data, 0o644)
		},
	}
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "payload file (default stdout)")
	return cmd
}
