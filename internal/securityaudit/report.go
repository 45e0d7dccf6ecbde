package securityaudit

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
)

// WriteJSON renders the report as indented JSON
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteText renders the report for a terminal
func (r *Report) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "Security audit %s\n\n", r.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(tw, "Principals\t%d\n", r.Stats.Principals)
	fmt.Fprintf(tw, "  global admins\t%d\n", r.Stats.GlobalAdmins)
	fmt.Fprintf(tw, "  tenant admins\t%d\n", r.Stats.TenantAdmins)
	fmt.Fprintf(tw, "  regular users\t%d\n", r.Stats.RegularUsers)
	fmt.Fprintf(tw, "Tenants\t%d\n", r.Stats.Tenants)
	fmt.Fprintf(tw, "Dashboards\t%d\n\n", r.Stats.Dashboards)

	if len(r.Findings) == 0 {
		fmt.Fprintln(tw, "No findings.")
	} else {
		fmt.Fprintln(tw, "SEVERITY\tCHECK\tSUBJECT\tMESSAGE")
		for _, f := range r.Findings {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.Severity, f.Check, f.Subject, f.Message)
		}
	}

	if len(r.Matrix) > 0 {
		fmt.Fprintln(tw, "\nPRINCIPAL\tTENANT\tEXPECTED\tACTUAL")
		for _, c := range r.Matrix {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.Principal, c.Tenant, allow(c.Expected), allow(c.Actual))
		}
	}

	fmt.Fprintf(tw, "\n%d violation(s)\n", r.Violations())
	return tw.Flush()
}

func allow(b bool) string {
	if b {
		return "allow"
	}
	return "deny"
}
