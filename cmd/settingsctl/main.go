package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/threadhelper/threadhelper/internal/settings"
)

func main() {
	app := cli.App{
		Name:  "settingsctl",
		Usage: "manage thread helper installation settings in Postgres",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "postgres connection string for the settings store",
				EnvVars:  []string{"DATABASE_URL"},
				Required: true,
			},
		},
	}
	app.Commands = []*cli.Command{
		{
			Name:   "migrate",
			Usage:  "apply the settings schema",
			Action: runMigrate,
		},
		{
			Name:   "list",
			Usage:  "list subreddits with stored settings",
			Action: runList,
		},
		{
			Name:      "get",
			Usage:     "print the stored options of one subreddit",
			ArgsUsage: "<subreddit>",
			Action:    runGet,
		},
		{
			Name:      "set",
			Usage:     "store one option",
			ArgsUsage: "<subreddit> <option> <value>",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "force",
					Usage: "store the option even if the name is not recognised",
				},
			},
			Action: runSet,
		},
		{
			Name:      "unset",
			Usage:     "delete one option so its default applies",
			ArgsUsage: "<subreddit> <option>",
			Action:    runUnset,
		},
		{
			Name:      "import",
			Usage:     "copy every option from a YAML settings file into Postgres",
			ArgsUsage: "<file>",
			Action:    runImport,
		},
	}
	app.RunAndExitOnError()
}

func openSource(cctx *cli.Context) (*settings.PostgresSource, *sql.DB, error) {
	db, err := settings.OpenPostgres(cctx.Context, cctx.String("database-url"))
	if err != nil {
		return nil, nil, err
	}
	return settings.NewPostgresSource(db), db, nil
}

func runMigrate(cctx *cli.Context) error {
	if err := settings.Migrate(cctx.String("database-url")); err != nil {
		return err
	}
	fmt.Println("settings schema is up to date")
	return nil
}

func runList(cctx *cli.Context) error {
	src, db, err := openSource(cctx)
	if err != nil {
		return err
	}
	defer db.Close()

	subs, err := src.Subreddits(cctx.Context)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		fmt.Println(sub)
	}
	return nil
}

func runGet(cctx *cli.Context) error {
	sub := cctx.Args().First()
	if sub == "" {
		return fmt.Errorf("need to provide subreddit as an argument")
	}
	src, db, err := openSource(cctx)
	if err != nil {
		return err
	}
	defer db.Close()

	v, err := src.Load(cctx.Context, sub)
	if err != nil {
		return err
	}
	printValues(os.Stdout, v)
	return nil
}

func runSet(cctx *cli.Context) error {
	if cctx.Args().Len() != 3 {
		return fmt.Errorf("expected <subreddit> <option> <value>")
	}
	sub, name, value := cctx.Args().Get(0), cctx.Args().Get(1), cctx.Args().Get(2)
	if !settings.Known(name) && !cctx.Bool("force") {
		return fmt.Errorf("unknown option %q (use --force to store it anyway)", name)
	}
	src, db, err := openSource(cctx)
	if err != nil {
		return err
	}
	defer db.Close()

	return src.Set(cctx.Context, sub, name, value)
}

func runUnset(cctx *cli.Context) error {
	if cctx.Args().Len() != 2 {
		return fmt.Errorf("expected <subreddit> <option>")
	}
	src, db, err := openSource(cctx)
	if err != nil {
		return err
	}
	defer db.Close()

	return src.Unset(cctx.Context, cctx.Args().Get(0), cctx.Args().Get(1))
}

func runImport(cctx *cli.Context) error {
	path := cctx.Args().First()
	if path == "" {
		return fmt.Errorf("need to provide settings file as an argument")
	}
	file, err := settings.LoadFile(path)
	if err != nil {
		return err
	}
	src, db, err := openSource(cctx)
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := importFile(cctx.Context, file, src)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d options\n", n)
	return nil
}

// optionWriter is the part of PostgresSource that import needs.
type optionWriter interface {
	Set(ctx context.Context, subreddit, name, value string) error
}

// importFile writes every option of every installation in file to dst. It
// stops at the first unknown option name so a typo never reaches the store.
func importFile(ctx context.Context, file *settings.FileSource, dst optionWriter) (int, error) {
	n := 0
	for _, sub := range file.Subreddits() {
		v, err := file.Load(ctx, sub)
		if err != nil {
			return n, err
		}
		for _, name := range v.Names() {
			if !settings.Known(name) {
				return n, fmt.Errorf("%s: unknown option %q", sub, name)
			}
		}
		for _, name := range v.Names() {
			if err := dst.Set(ctx, sub, name, v.String(name)); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

func printValues(w io.Writer, v settings.Values) {
	for _, name := range v.Names() {
		fmt.Fprintf(w, "%s=%s\n", name, v.String(name))
	}
}
