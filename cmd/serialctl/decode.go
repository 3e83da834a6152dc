package main

import (
	"bufio"
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lk2023060901/garden-serial/pkg/log"
	"github.com/lk2023060901/garden-serial/pkg/serial"
)

func newDecodeCmd(c *cli) *cobra.Command {
	var (
		snapshotPath string
		stream       bool
	)
	cmd := &cobra.Command{
		Use:   "decode <payload|->",
		Short: "Decode a payload into JSON",
		Long: `Decode a payload written by Marshal (or, with --stream, a sequence of values
written by one Encoder) and print each value as JSON. Types without an inline
descriptor can be resolved with --snapshot.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo := c.app.Repository()
			if snapshotPath != "" {
				if err := loadSnapshot(cmd, repo, snapshotPath); err != nil {
					return err
				}
			}

			in, err := openInput(cmd, args[0])
			if err != nil {
				return err
			}
			defer in.Close()

			if stream {
				return decodeStream(cmd.OutOrStdout(), repo, bufio.NewReader(in))
			}
			data, err := io.ReadAll(in)
			if err != nil {
				return err
			}
			v, err := repo.Decode(data)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), repo, v)
		},
	}
	cmd.Flags().StringVar(&snapshotPath, "snapshot", "", "descriptor snapshot to load before decoding")
	cmd.Flags().BoolVar(&stream, "stream", false, "decode values until end of input")
	return cmd
}

func decodeStream(out io.Writer, repo *serial.Repository, in *bufio.Reader) error {
	dec := repo.NewDecoder(in)
	for n := 0; ; n++ {
		if _, err := in.Peek(1); errors.Is(err, io.EOF) {
			log.Debug("stream decoded", zap.Int("values", n))
			return nil
		}
		v, err := dec.DecodeAny()
		if err != nil {
			return errors.Wrapf(err, "value %d at offset %d", n, dec.Offset())
		}
		if err := printJSON(out, repo, v); err != nil {
			return err
		}
	}
}

func loadSnapshot(cmd *cobra.Command, repo *serial.Repository, path string) error {
	f, err := openInput(cmd, path)
	if err != nil {
		return err
	}
	defer f.Close()
	return repo.LoadSnapshot(f)
}

func printJSON(out io.Writer, repo *serial.Repository, v any) error {
	data, err := repo.ToJSON(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
