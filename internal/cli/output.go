package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"certledger/internal/certificate/models"
	"certledger/internal/certificate/timestamp"
	dErrors "certledger/pkg/domain-errors"
)

// Exit codes for certctl.
const (
	ExitSuccess     = 0
	ExitFailure     = 1 // validation failure or ledger rejection
	ExitUsage       = 2 // bad flags, arguments or configuration
	ExitUnavailable = 3 // ledger could not be reached
)

// ExitError carries the process exit code for a command failure.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// ExitCode maps an error returned by a command to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if dErrors.HasCode(err, dErrors.CodeLedgerUnavailable) {
		return ExitUnavailable
	}
	return ExitFailure
}

// OutputFormatter renders command results as text or JSON.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
}

// Emit writes data as indented JSON, or calls text in text mode.
func (f *OutputFormatter) Emit(data any, text func(w io.Writer) error) error {
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}
	return text(f.Writer)
}

// Warn writes a diagnostic line to stderr.
func (f *OutputFormatter) Warn(format string, args ...any) {
	fmt.Fprintf(f.ErrWriter, "warning: "+format+"\n", args...)
}

type certificateView struct {
	ID             uint64 `json:"id"`
	RecipientName  string `json:"recipient_name"`
	CourseName     string `json:"course_name"`
	IssueDate      int64  `json:"issue_date"`
	CompletionDate string `json:"completion_date"`
	IsValid        bool   `json:"is_valid"`
}

func toViews(codec *timestamp.Codec, records []models.CertificateRecord) []certificateView {
	out := make([]certificateView, 0, len(records))
	for _, r := range records {
		out = append(out, toView(codec, r))
	}
	return out
}

func toView(codec *timestamp.Codec, r models.CertificateRecord) certificateView {
	return certificateView{
		ID:             uint64(r.ID),
		RecipientName:  r.RecipientName,
		CourseName:     r.CourseName,
		IssueDate:      r.IssueDate,
		CompletionDate: codec.FormatDate(r.IssueDate),
		IsValid:        r.IsValid,
	}
}

// writeTable renders the certificate listing with the columns of the operator
// console.
func writeTable(w io.Writer, views []certificateView) error {
	if len(views) == 0 {
		_, err := fmt.Fprintln(w, "No certificates on the ledger.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tRECIPIENT\tCOURSE\tCOMPLETION DATE\tVALID")
	for _, v := range views {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", v.ID, v.RecipientName, v.CourseName, v.CompletionDate, yesNo(v.IsValid))
	}
	return tw.Flush()
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
