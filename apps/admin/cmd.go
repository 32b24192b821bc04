package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/gradebook"
	emailsvc "github.com/trezcool/gradebook/services/email"
	"github.com/trezcool/gradebook/storage/database"
)

var (
	isTerminalFunc = func(w io.Writer) bool { // mockable
		f, ok := w.(*os.File)
		return ok && term.IsTerminal(int(f.Fd()))
	}

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf   *core.Config
	logger core.Logger
	out    io.Writer

	// opened on first use, unless set
	svc     gradebook.Service
	closers []io.Closer
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS]                               - run a goose command (up, down, status, ...)")
	fmt.Println("  seed                                                 - create the classes, subjects and terms")
	fmt.Println("  report -class ID -subject ID -term ID                - print the mark sheet")
	fmt.Println("  import -class ID -subject ID -term ID -file PATH     - import marks from a CSV file")
	fmt.Println("  export -class ID -subject ID -term ID [-out PATH]    - export the mark sheet as CSV")
}

// tripleFlags registers the -class, -subject and -term flags on fs.
func tripleFlags(fs *flag.FlagSet) *gradebook.Triple {
	var t gradebook.Triple
	fs.StringVar(&t.ClassID, "class", "", "The class ID, e.g. cls_1_101.")
	fs.StringVar(&t.SubjectID, "subject", "", "The subject ID, e.g. subj_1.")
	fs.StringVar(&t.TermID, "term", "", "The term ID, e.g. term_1.")
	return &t
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	reportCmd := flag.NewFlagSet("report", flag.ContinueOnError)
	reportTriple := tripleFlags(reportCmd)

	importCmd := flag.NewFlagSet("import", flag.ContinueOnError)
	importTriple := tripleFlags(importCmd)
	importFile := importCmd.String("file", "", "The CSV file to import. Its header must have a name column.")
	importAddMissing := importCmd.Bool("add-missing", false, "Create the students of the file missing from the class.")

	exportCmd := flag.NewFlagSet("export", flag.ContinueOnError)
	exportTriple := tripleFlags(exportCmd)
	exportOut := exportCmd.String("out", "", "The file to write. Defaults to stdout.")

	parse := func(fs *flag.FlagSet, t *gradebook.Triple) error {
		if err := fs.Parse(args[2:]); err != nil {
			if err == flag.ErrHelp {
				return errHelp
			}
			return err
		}
		t.Clean()
		if t.ClassID == "" || t.SubjectID == "" || t.TermID == "" {
			fs.Usage()
			return errHelp
		}
		return nil
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			fmt.Println("Usage: migrate COMMAND [ARGS]")
			return errHelp
		}
		return cli.migrate(args[2:])

	case "seed":
		return cli.seed()

	case "report":
		if err := parse(reportCmd, reportTriple); err != nil {
			return err
		}
		return cli.report(*reportTriple)

	case "import":
		if err := parse(importCmd, importTriple); err != nil {
			return err
		}
		if *importFile == "" {
			importCmd.Usage()
			return errHelp
		}
		return cli.importMarks(*importTriple, *importFile, *importAddMissing)

	case "export":
		if err := parse(exportCmd, exportTriple); err != nil {
			return err
		}
		return cli.export(*exportTriple, *exportOut)

	default:
		cli.printUsage()
		return errHelp
	}
}

// service opens the configured storage and seeds its catalog.
func (cli *commandLine) service() (gradebook.Service, error) {
	if cli.svc != nil {
		return cli.svc, nil
	}
	repo, closer, err := database.NewRepository(cli.conf, cli.logger)
	if err != nil {
		return nil, errors.Wrap(err, "setting up storage")
	}
	cli.closers = append(cli.closers, closer)

	svc := gradebook.NewService(repo, emailsvc.NewConsoleService(cli.conf), cli.logger)
	if err = svc.SeedCatalog(context.Background()); err != nil {
		return nil, errors.Wrap(err, "seeding catalog")
	}
	cli.svc = svc
	return svc, nil
}

func (cli *commandLine) close() {
	for _, c := range cli.closers {
		if err := c.Close(); err != nil {
			cli.logger.Error("Failed to close", err)
		}
	}
	cli.closers = nil
}

func (cli *commandLine) seed() error {
	svc, err := cli.service()
	if err != nil {
		return err
	}
	if err = svc.SeedCatalog(context.Background()); err != nil {
		return err
	}
	cat, err := svc.Catalog(context.Background())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cli.out, "catalog: %d classes, %d subjects, %d terms\n",
		len(cat.Classes), len(cat.Subjects), len(cat.Terms))
	return err
}

// report prints the mark sheet as a table on a terminal, and as CSV otherwise.
func (cli *commandLine) report(t gradebook.Triple) error {
	svc, err := cli.service()
	if err != nil {
		return err
	}
	sheet, err := svc.MarkSheet(context.Background(), t)
	if err != nil {
		return err
	}

	if !isTerminalFunc(cli.out) {
		return gradebook.WriteCSV(cli.out, sheet)
	}
	_, _ = color.New(color.FgCyan, color.Bold).Fprintf(cli.out, "MARK SHEET (%d students)\n", len(sheet.Rows))
	gradebook.WriteTable(cli.out, sheet)
	return nil
}

// importMarks loads the mark sheet of t, merges the file into it and saves every changed mark.
func (cli *commandLine) importMarks(t gradebook.Triple, path string, addMissing bool) error {
	svc, err := cli.service()
	if err != nil {
		return err
	}
	records, err := readCSVFile(path)
	if err != nil {
		return err
	}

	ctx := context.Background()
	sess := gradebook.NewSession(svc, cli.logger)
	defer sess.Close()
	if err = sess.Load(ctx, t); err != nil {
		return err
	}
	report, err := sess.Import(ctx, records, addMissing)
	if err != nil {
		return err
	}
	saved, err := sess.SaveAll(ctx)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(cli.out, "matched: %d, created: %d, skipped: %d, saved: %d\n",
		report.Matched, len(report.Created), report.Skipped, saved)
	warn := color.New(color.FgYellow)
	for _, u := range report.Unknown {
		if u.Suggestion != "" {
			_, _ = warn.Fprintf(cli.out, "unknown student %q (did you mean %q?)\n", u.Name, u.Suggestion)
		} else {
			_, _ = warn.Fprintf(cli.out, "unknown student %q\n", u.Name)
		}
	}
	return nil
}

func (cli *commandLine) export(t gradebook.Triple, path string) error {
	svc, err := cli.service()
	if err != nil {
		return err
	}
	sheet, err := svc.MarkSheet(context.Background(), t)
	if err != nil {
		return err
	}
	if path == "" {
		return gradebook.WriteCSV(cli.out, sheet)
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating export file")
	}
	if err = gradebook.WriteCSV(f, sheet); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	_, err = fmt.Fprintf(cli.out, "%d rows written to %s\n", len(sheet.Rows), path)
	return err
}

func readCSVFile(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening import file")
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "reading import file")
	}
	return records, nil
}
