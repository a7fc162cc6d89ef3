package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kodix/kodix/internal/salesimport"
	"github.com/kodix/kodix/internal/store"
)

var importTeamID int64

var importSalesCmd = &cobra.Command{
	Use:   "import-sales <file.csv>",
	Short: "Import sales and cashback credit for a team",
	Long: "Reads a CSV with the columns " + strings.Join(salesimport.Columns, ", ") + `.
Clients are matched by document. Sales already imported (same ca_numero)
are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runImportSales,
}

func init() {
	importSalesCmd.Flags().Int64Var(&importTeamID, "team", 0, "Team ID to import into")
	importSalesCmd.MarkFlagRequired("team")
}

func runImportSales(cmd *cobra.Command, args []string) error {
	cfg, logger, db, err := setup()
	if err != nil {
		return err
	}
	defer db.Close()

	team, err := store.NewTeamStore(db).GetByID(importTeamID)
	if err != nil {
		return err
	}
	if team == nil {
		return fmt.Errorf("team %d not found", importTeamID)
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	res, err := salesimport.Import(f, store.NewCashbackStore(db), team.ID, cfg.Timezone)
	logger.Info("sales import", "team_id", team.ID, "sales", res.Sales, "skipped", res.Skipped, "clients_created", res.ClientsCreated)
	return err
}
