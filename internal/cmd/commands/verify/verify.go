package verify

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/clinica-juridica/expediente/internal/cmd/base"
	"github.com/clinica-juridica/expediente/pkg/integrity"
	"github.com/clinica-juridica/expediente/pkg/models"
)

// Exit codes.
const (
	exitOK     = 0
	exitError  = 1
	exitFaults = 2
)

type Command struct {
	*base.Command

	flagConfig string
	flagCase   uint
	flagOutput string
}

// Report is the YAML document written by the command.
type Report struct {
	GeneratedAt time.Time    `yaml:"generated_at"`
	Cases       []CaseReport `yaml:"cases"`
	Faults      int          `yaml:"faults"`
}

type CaseReport struct {
	CaseID    uint          `yaml:"case_id"`
	RolRIT    string        `yaml:"rol_rit"`
	Documents int           `yaml:"documents"`
	Alerts    []AlertReport `yaml:"alerts,omitempty"`
}

type AlertReport struct {
	Folio   int    `yaml:"folio"`
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Message string `yaml:"message"`
	Logged  bool   `yaml:"logged"`
}

func (c *Command) Synopsis() string {
	return "Re-verify stored documents against their recorded hashes"
}

func (c *Command) Help() string {
	return `Usage: expediente verify -config=config.hcl [-case=ID] [-output=report.yaml]

  Runs the integrity audit over one case or every case, exactly as a case
  view would: new faults are written to the activity log once and healed
  documents are cleared. Suitable for running from cron.

  Exits 0 when every document verifies, 2 when faults were found and 1 on
  errors.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("verify", flag.ContinueOnError))

	f.StringVar(
		&c.flagConfig, "config", "",
		"[EXPEDIENTE_CONFIG] Path to the HCL configuration file",
	)
	f.UintVar(
		&c.flagCase, "case", 0,
		"Case ID to verify (default: all cases)",
	)
	f.StringVar(
		&c.flagOutput, "output", "",
		"Write the YAML report to this file instead of standard output",
	)

	return f
}

func (c *Command) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return exitError
	}
	if c.flagConfig == "" {
		c.flagConfig = os.Getenv("EXPEDIENTE_CONFIG")
	}

	cfg, err := c.LoadConfig(c.flagConfig)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error loading config: %v", err))
		return exitError
	}

	ctx := context.Background()
	srv, cleanup, err := c.Setup(ctx, cfg)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error initializing: %v", err))
		return exitError
	}
	defer cleanup()

	var caseIDs []uint
	if c.flagCase != 0 {
		caseIDs = []uint{c.flagCase}
	} else if caseIDs, err = models.ListCaseIDs(srv.DB); err != nil {
		c.UI.Error(fmt.Sprintf("error listing cases: %v", err))
		return exitError
	}

	report, err := Run(ctx, srv.DB, srv.Auditor, caseIDs)
	if err != nil {
		c.UI.Error(err.Error())
		return exitError
	}

	// Standard output carries only the YAML report.
	WriteStatus(os.Stderr, report)

	var out io.Writer = os.Stdout
	if c.flagOutput != "" {
		file, err := os.Create(c.flagOutput)
		if err != nil {
			c.UI.Error(fmt.Sprintf("error creating report file: %v", err))
			return exitError
		}
		defer file.Close()
		out = file
	}
	if err := WriteReport(out, report); err != nil {
		c.UI.Error(fmt.Sprintf("error writing report: %v", err))
		return exitError
	}

	if report.Faults > 0 {
		return exitFaults
	}
	return exitOK
}

// Run audits the given cases and builds the report.
func Run(ctx context.Context, db *gorm.DB, auditor *integrity.Auditor, caseIDs []uint) (*Report, error) {
	report := &Report{GeneratedAt: time.Now().UTC()}

	for _, id := range caseIDs {
		kase := &models.Case{}
		if err := kase.Get(db.WithContext(ctx), id); err != nil {
			return nil, fmt.Errorf("error getting case %d: %w", id, err)
		}

		docs, err := models.ListDocumentsByCase(db.WithContext(ctx), id)
		if err != nil {
			return nil, fmt.Errorf("error listing documents of case %d: %w", id, err)
		}

		alerts, err := auditor.AuditCase(ctx, id, integrity.SystemActor)
		if err != nil {
			return nil, err
		}

		cr := CaseReport{
			CaseID:    id,
			RolRIT:    kase.RolRIT,
			Documents: len(docs),
		}
		for _, a := range alerts {
			cr.Alerts = append(cr.Alerts, AlertReport{
				Folio:   a.Document.Folio,
				Name:    a.Document.Name,
				Type:    string(a.Type),
				Message: a.Message,
				Logged:  a.Logged,
			})
		}
		report.Faults += len(cr.Alerts)
		report.Cases = append(report.Cases, cr)
	}

	return report, nil
}

// WriteStatus writes one coloured line per case, and one line per fault.
func WriteStatus(w io.Writer, report *Report) {
	ok := color.New(color.FgGreen).SprintFunc()
	bad := color.New(color.FgRed, color.Bold).SprintFunc()
	for _, cr := range report.Cases {
		if len(cr.Alerts) == 0 {
			fmt.Fprintf(w, "%s case %d (%s): %d documents\n", ok("OK   "), cr.CaseID, cr.RolRIT, cr.Documents)
			continue
		}
		fmt.Fprintf(w, "%s case %d (%s): %d of %d documents failed\n",
			bad("FAULT"), cr.CaseID, cr.RolRIT, len(cr.Alerts), cr.Documents)
		for _, a := range cr.Alerts {
			fmt.Fprintf(w, "        folio %d: %s\n", a.Folio, a.Message)
		}
	}
}

// WriteReport encodes report as YAML.
func WriteReport(w io.Writer, report *Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return err
	}
	return enc.Close()
}
