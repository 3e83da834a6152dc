package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/lk2023060901/garden-serial/pkg/serial"
)

func newSnapshotCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Work with descriptor snapshots",
	}
	cmd.AddCommand(newSnapshotInspectCmd(c))
	return cmd
}

type inspectField struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Type    string `json:"type,omitempty"`
	OldName string `json:"from,omitempty"`
}

type inspectType struct {
	UID       string         `json:"uid"`
	Name      string         `json:"name"`
	Kind      string         `json:"kind"`
	Fields    []inspectField `json:"fields,omitempty"`
	Constants []string       `json:"constants,omitempty"`
}

type inspectReport struct {
	Version string                 `json:"version"`
	Types   []inspectType          `json:"types"`
	Aliases []serial.SnapshotAlias `json:"aliases,omitempty"`
}

func newSnapshotInspectCmd(c *cli) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "inspect <snapshot|->",
		Short: "List the descriptors stored in a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := openInput(cmd, args[0])
			if err != nil {
				return err
			}
			defer in.Close()
			snap, err := serial.ReadSnapshot(in)
			if err != nil {
				return err
			}

			report := buildReport(snap)
			out := cmd.OutOrStdout()
			if asJSON {
				data, err := sonic.ConfigStd.MarshalIndent(report, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, string(data))
				return err
			}

			fmt.Fprintf(out, "snapshot v%s, %d types\n", report.Version, len(report.Types))
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "UID\tKIND\tNAME\tFIELDS")
			for _, t := range report.Types {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", t.UID, t.Kind, t.Name, len(t.Fields))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			for _, a := range report.Aliases {
				fmt.Fprintf(out, "alias %s -> %s\n", a.UID, a.Type)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func buildReport(snap *serial.Snapshot) inspectReport {
	report := inspectReport{Version: snap.Version.String(), Aliases: snap.Aliases}
	for _, uid := range snap.UIDs() {
		d := snap.Descriptors[uid]
		t := inspectType{UID: uid.String(), Name: d.Name, Kind: d.Kind.String(), Constants: d.Constants}
		for _, f := range d.Fields {
			t.Fields = append(t.Fields, inspectField{Name: f.Name, Kind: f.Kind.String(), Type: f.Type, OldName: f.OldName})
		}
		report.Types = append(report.Types, t)
	}
	return report
}
