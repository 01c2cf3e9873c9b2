package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/kbase/kit"
	"github.com/hazyhaar/kbase/knowledge"
)

func init() {
	var language string

	fetchCmd := &cobra.Command{
		Use:   "fetch <source-id>",
		Short: "Fetch one source now",
		Args:  cobra.ExactArgs(1),
		RunE: withService(func(ctx context.Context, svc *knowledge.Service, args []string) error {
			out, err := svc.FetchSource(cliContext(ctx), args[0])
			if out != nil {
				printJSON(out)
			}
			return err
		}),
	}

	fetchAllCmd := &cobra.Command{
		Use:   "fetch-all",
		Short: "Fetch every auto-fetch source that is due",
		RunE: withService(func(ctx context.Context, svc *knowledge.Service, _ []string) error {
			report, err := svc.FetchAllPending(cliContext(ctx))
			if err != nil {
				return err
			}
			printJSON(report)
			if report.Failed > 0 {
				return fmt.Errorf("%d of %d sources failed", report.Failed, len(report.Results))
			}
			return nil
		}),
	}

	compileCmd := &cobra.Command{
		Use:   "compile",
		Short: "Print the compiled knowledge corpus",
		RunE: withService(func(ctx context.Context, svc *knowledge.Service, _ []string) error {
			text, err := svc.Corpus(cliContext(ctx), language)
			if err != nil {
				return err
			}
			fmt.Println(text)
			return nil
		}),
	}
	compileCmd.Flags().StringVarP(&language, "language", "l", "both", "sv, en or both")

	trainCmd := &cobra.Command{
		Use:   "train",
		Short: "Compile the corpus and mark the included sources as trained",
		RunE: withService(func(ctx context.Context, svc *knowledge.Service, _ []string) error {
			res, err := svc.Train(cliContext(ctx), language)
			if err != nil {
				return err
			}
			printJSON(map[string]any{"language": res.Language, "sources": len(res.SourceIDs), "trained_at": res.TrainedAt})
			return nil
		}),
	}
	trainCmd.Flags().StringVarP(&language, "language", "l", "both", "sv, en or both")

	sourcesCmd := &cobra.Command{
		Use:   "sources",
		Short: "List registered sources",
		RunE: withService(func(ctx context.Context, svc *knowledge.Service, _ []string) error {
			sources, err := svc.ListSources(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tTYPE\tLANG\tPRIO\tACTIVE\tSTATUS\tLAST FETCHED")
			for _, s := range sources {
				last := "-"
				if s.LastFetched != nil {
					last = time.UnixMilli(*s.LastFetched).UTC().Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%t\t%s\t%s\n",
					s.ID, s.Name, s.SourceType, s.Language, s.Priority, s.IsActive, s.FetchStatus, last)
			}
			return tw.Flush()
		}),
	}

	importCmd := &cobra.Command{
		Use:   "import <sources.yaml>",
		Short: "Insert or replace sources from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: withService(func(ctx context.Context, svc *knowledge.Service, args []string) error {
			sources, err := knowledge.LoadSourcesFile(args[0])
			if err != nil {
				return err
			}
			if err := svc.UpsertSources(cliContext(ctx), sources); err != nil {
				return err
			}
			printJSON(map[string]int{"imported": len(sources)})
			return nil
		}),
	}

	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the knowledge tools over MCP stdio",
		RunE: withService(func(ctx context.Context, svc *knowledge.Service, _ []string) error {
			srv := mcp.NewServer(&mcp.Implementation{Name: "kbase", Version: "1.0.0"}, nil)
			svc.RegisterMCP(srv)
			return srv.Run(ctx, &mcp.StdioTransport{})
		}),
	}

	rootCmd.AddCommand(fetchCmd, fetchAllCmd, compileCmd, trainCmd, sourcesCmd, importCmd, mcpCmd)
}

// cliContext tags CLI calls with the transport and the invoking OS user.
func cliContext(ctx context.Context) context.Context {
	ctx = kit.WithTransport(ctx, "cli")
	if u := os.Getenv("USER"); u != "" {
		ctx = kit.WithActor(ctx, u)
	}
	return ctx
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
