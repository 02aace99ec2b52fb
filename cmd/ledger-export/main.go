package main

import (
	"context"

	"github.com/alecthomas/kong"
)

var (
	version = "dev"
	cli     struct {
		Export  ExportCmd  `cmd:"" help:"Export issued certificates as CSV or XLSX"`
		Verify  VerifyCmd  `cmd:"" help:"Look up a certificate by serial number"`
		Migrate MigrateCmd `cmd:"" help:"Apply database migrations"`
		Config  string     `help:"Path to JSON config file" default:"config.json" env:"CONFIG_PATH"`
		Debug   bool       `help:"Enable debug logging."`
		Version kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Description("Audit tooling for the certificate ledger."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&Globals{ConfigPath: cli.Config, Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
