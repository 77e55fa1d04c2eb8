package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/artpar/coworkbill/domain/billing"
	"github.com/spf13/cobra"
)

var tenantCmd = &cobra.Command{
	Use:   "tenant",
	Short: "Manage tenants",
	Long: `Manage coworking tenants.

Tenants own invoices. The client fields of generated invoices fall back to
the tenant profile when the previous invoice leaves them empty.

Examples:
  coworkbill tenant list
  coworkbill tenant add T-001 --name "Ada Lovelace" --email ada@example.com`,
}

var tenantListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all tenants",
	RunE:  runTenantList,
}

var tenantAddCmd = &cobra.Command{
	Use:   "add <tenant-id>",
	Short: "Create or update a tenant",
	Args:  cobra.ExactArgs(1),
	RunE:  runTenantAdd,
}

var (
	tenantName    string
	tenantCompany string
	tenantEmail   string
	tenantPhone   string
)

func init() {
	rootCmd.AddCommand(tenantCmd)
	tenantCmd.AddCommand(tenantListCmd)
	tenantCmd.AddCommand(tenantAddCmd)

	tenantAddCmd.Flags().StringVar(&tenantName, "name", "", "contact name (required)")
	tenantAddCmd.Flags().StringVar(&tenantCompany, "company", "", "company name")
	tenantAddCmd.Flags().StringVar(&tenantEmail, "email", "", "billing email")
	tenantAddCmd.Flags().StringVar(&tenantPhone, "phone", "", "contact number")
	tenantAddCmd.MarkFlagRequired("name")
}

func runTenantList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	tenants, err := a.Store.ListTenants(cmd.Context())
	if err != nil {
		return fmt.Errorf("list tenants: %w", err)
	}

	if len(tenants) == 0 {
		fmt.Println("No tenants found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCOMPANY\tEMAIL")
	for _, t := range tenants {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.ID, t.Name, t.CompanyName, t.Email)
	}
	return w.Flush()
}

func runTenantAdd(cmd *cobra.Command, args []string) error {
	id := strings.TrimSpace(args[0])
	if id == "" {
		return fmt.Errorf("tenant id must not be empty")
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	t := billing.Tenant{
		ID:            id,
		Name:          tenantName,
		CompanyName:   tenantCompany,
		Email:         tenantEmail,
		ContactNumber: tenantPhone,
	}
	if err := a.Store.UpsertTenant(cmd.Context(), t); err != nil {
		return fmt.Errorf("save tenant: %w", err)
	}

	fmt.Printf("Tenant %s saved.\n", id)
	return nil
}
