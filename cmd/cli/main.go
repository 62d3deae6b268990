package main

import (
	"context"

	"github.com/alecthomas/kong"

	"github.com/wolfeidau/loadboard/cmd/cli/internal/commands"
	"github.com/wolfeidau/loadboard/internal/auth"
	"github.com/wolfeidau/loadboard/internal/logger"
)

var (
	version = "dev"
	cli     struct {
		Init        commands.InitCmd        `cmd:"" help:"Generate or import a signing credential"`
		Credentials commands.CredentialsCmd `cmd:"" help:"Manage local credentials"`
		Loads       commands.LoadsCmd       `cmd:"" help:"Create, list and move loads through their lifecycle"`
		Debug       bool                    `help:"Enable debug mode."`
		Version     kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("loadboard-cli"),
		kong.Vars{
			"version":         version,
			"superuser_group": auth.SuperuserGroup,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	logger.Setup(cli.Debug)
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
