package main

import (
	"context"

	"github.com/alecthomas/kong"

	"github.com/wolfeidau/loadboard/cmd/server/internal/commands"
	"github.com/wolfeidau/loadboard/internal/auth"
)

var (
	version = "dev"
	cli     struct {
		Debug     bool `help:"Enable debug mode."`
		Version   kong.VersionFlag
		Server    commands.ServerCmd    `cmd:"" help:"Start the API server"`
		Bootstrap commands.BootstrapCmd `cmd:"" help:"Create the DynamoDB table, SQS queue and S3 bucket for an environment"`
		Seed      commands.SeedCmd      `cmd:"" help:"Load organizations, users, fleet assets and loads from a YAML fixture"`
		Token     commands.TokenCmd     `cmd:"" help:"Issue a signed development token"`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version":         version,
			"superuser_group": auth.SuperuserGroup,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
