package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:      "lettuce-cli",
		Usage:     "send commands to a lettuce server",
		ArgsUsage: "[command [arg...]]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Aliases: []string{"a"},
				Usage:   "server address",
				EnvVars: []string{"LETTUCE_ADDR"},
				Value:   "127.0.0.1:6379",
			},
		},
		Action: func(c *cli.Context) error {
			rdb := redis.NewClient(&redis.Options{
				Addr: c.String("addr"),
			})
			defer rdb.Close() //nolint:errcheck

			if c.Args().Present() {
				fmt.Fprintln(c.App.Writer, do(c.Context, rdb, c.Args().Slice()))
				return nil
			}
			return repl(c.Context, rdb, os.Stdin, c.App.Writer)
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// repl executes one whitespace-separated command per input line
func repl(ctx context.Context, rdb *redis.Client, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "lettuce> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		args := strings.Fields(scanner.Text())
		if len(args) == 0 {
			continue
		}
		if strings.EqualFold(args[0], "quit") || strings.EqualFold(args[0], "exit") {
			return nil
		}

		fmt.Fprintln(out, do(ctx, rdb, args))
	}
}

func do(ctx context.Context, rdb *redis.Client, args []string) string {
	cmdArgs := make([]interface{}, len(args))
	for i, a := range args {
		cmdArgs[i] = a
	}

	val, err := rdb.Do(ctx, cmdArgs...).Result()
	if errors.Is(err, redis.Nil) {
		return "(nil)"
	}
	if err != nil {
		return "(error) " + err.Error()
	}
	return format(val, "")
}

// format renders a reply the way interactive redis clients do
func format(v interface{}, indent string) string {
	switch val := v.(type) {
	case nil:
		return "(nil)"
	case int64:
		return fmt.Sprintf("(integer) %d", val)
	case string:
		return fmt.Sprintf("%q", val)
	case []interface{}:
		if len(val) == 0 {
			return "(empty array)"
		}
		var sb strings.Builder
		width := len(fmt.Sprint(len(val)))
		for i, item := range val {
			if i > 0 {
				sb.WriteString("\n" + indent)
			}
			prefix := fmt.Sprintf("%*d) ", width, i+1)
			sb.WriteString(prefix)
			sb.WriteString(format(item, indent+strings.Repeat(" ", len(prefix))))
		}
		return sb.String()
	default:
		return fmt.Sprint(val)
	}
}
