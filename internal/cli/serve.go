package cli

import (
	"github.com/spf13/cobra"

	"github.com/matzehuels/superbom/internal/server"
)

// serveCommand creates the serve command, which runs the HTTP API.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		addr    string
		noCache bool
		maxBody int64
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve BOM generation and license checks over HTTP",
		Example: `  superbom serve --addr :8080
  curl --data-binary @requirements.txt localhost:8080/v1/bom/requirements`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fc, err := loadConfig(c.configPath, defaultEnvFile)
			if err != nil {
				return err
			}
			p, err := c.newPipeline(cmd.Context(), fc, pipelineOpts{noCache: noCache})
			if err != nil {
				return err
			}
			defer p.Close()

			srv := server.New(server.Options{
				Resolver: p.assembler,
				Oracle:   p.oracle,
				Logger:   c.Logger,
				MaxBody:  maxBody,
			})

			printInfo("Listening on %s", StyleLink.Render("http://"+displayAddr(addr)))
			printDetail("Channels: %v  Platforms: %v", p.config.Channels(), p.config.Platforms())
			return srv.ListenAndServe(cmd.Context(), addr)
		},
	}

	f := cmd.Flags()
	f.StringVar(&addr, "addr", ":8080", "listen address")
	f.BoolVar(&noCache, "no-cache", false, "disable the response cache")
	f.Int64Var(&maxBody, "max-body", 1<<20, "maximum manifest size in bytes")
	return cmd
}

// displayAddr turns ":8080" into "localhost:8080".
func displayAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}
