package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"planet/internal/config"
	"planet/internal/ipc"
)

func newArticleCommand(ctx *commandContext) *cobra.Command {
	articleCmd := &cobra.Command{
		Use:   "article",
		Short: "Write and locate articles",
	}
	articleCmd.AddCommand(newArticleAddCommand(ctx))
	articleCmd.AddCommand(newArticleURLCommand(ctx))
	return articleCmd
}

func newArticleAddCommand(ctx *commandContext) *cobra.Command {
	var title string
	var content string
	var file string

	cmd := &cobra.Command{
		Use:   "add <feed-id>",
		Short: "Add a markdown article to a local feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := articleBody(cmd.InOrStdin(), content, file)
			if err != nil {
				return err
			}
			if strings.TrimSpace(title) == "" {
				return errors.New("--title is required")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ArticleAdd(strings.TrimSpace(args[0]), title, body)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added article %s (%s)\n", resp.Article.Title, resp.Article.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "Article title")
	cmd.Flags().StringVar(&content, "content", "", "Markdown body")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the markdown body from a file (- for stdin)")
	return cmd
}

func articleBody(stdin io.Reader, content, file string) (string, error) {
	file = strings.TrimSpace(file)
	if content != "" && file != "" {
		return "", errors.New("use either --content or --file, not both")
	}
	switch file {
	case "":
		return content, nil
	case "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	path, err := config.ExpandPath(file)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read article file: %w", err)
	}
	return string(data), nil
}

func newArticleURLCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "url <feed-id> <article-id>",
		Short: "Print the URL an article can be opened at",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ArticleURL(strings.TrimSpace(args[0]), strings.TrimSpace(args[1]))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), resp.URL)
				return nil
			})
		},
	}
}
