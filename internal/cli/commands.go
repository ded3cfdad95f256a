package cli

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/stickerlab/stickerlab/internal/app"
	"github.com/stickerlab/stickerlab/internal/catalog"
	pkgerrors "github.com/stickerlab/stickerlab/pkg/errors"
)

func parseID(raw, what string) (int, error) {
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s must be a positive number", what))
	}
	return id, nil
}

func (r *runner) loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login PHONE",
		Short: "Sign in with a phone number; the first login grants starter credits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withContainer(cmd, func(ctx context.Context, c *app.Container) error {
				profile, err := c.Account.Login(ctx, args[0])
				if err != nil {
					return err
				}
				balance, err := c.Credits.Balance(ctx)
				if err != nil {
					return err
				}
				if r.jsonOut {
					return r.printJSON(map[string]any{"profile": profile, "balance": balance})
				}
				fmt.Fprintf(r.out, "Signed in as %s. You have %d credits.\n", profile.Phone, balance)
				return nil
			})
		},
	}
}

func (r *runner) balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show the credit balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withContainer(cmd, func(ctx context.Context, c *app.Container) error {
				balance, err := c.Credits.Balance(ctx)
				if err != nil {
					return err
				}
				if r.jsonOut {
					return r.printJSON(map[string]int{"balance": balance})
				}
				fmt.Fprintf(r.out, "%d credits\n", balance)
				return nil
			})
		},
	}
}

func (r *runner) buyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "buy PACKAGE_ID",
		Short: "Buy a credit package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "package id")
			if err != nil {
				return err
			}
			return r.withContainer(cmd, func(ctx context.Context, c *app.Container) error {
				receipt, err := c.Billing.PurchaseCredits(ctx, id)
				if err != nil {
					return err
				}
				if r.jsonOut {
					return r.printJSON(receipt)
				}
				fmt.Fprintf(r.out, "Added %d credits for %s. Balance: %d\n", receipt.CreditsAdded, receipt.Package.DisplayPrice(), receipt.Balance)
				return nil
			})
		},
	}
}

func (r *runner) packagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "packages",
		Short: "List credit packages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			packages := catalog.CreditPackages()
			if r.jsonOut {
				return r.printJSON(packages)
			}
			tw := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tPACKAGE\tPRICE\tPER STICKER\t")
			for _, p := range packages {
				label := p.Label
				switch {
				case p.Popular:
					label += " (popular)"
				case p.BestValue:
					label += " (best value)"
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t\n", p.ID, label, p.DisplayPrice(), p.DisplayPerSticker())
			}
			return tw.Flush()
		},
	}
}

func (r *runner) packsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "packs",
		Short: "List sticker packs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withContainer(cmd, func(ctx context.Context, c *app.Container) error {
				claims, err := c.Billing.ClaimedPacks(ctx)
				if err != nil {
					return err
				}
				claimed := make(map[int]bool, len(claims))
				for _, cl := range claims {
					claimed[cl.PackID] = true
				}
				packs := catalog.StickerPacks()
				if r.jsonOut {
					return r.printJSON(packs)
				}
				tw := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tPACK\tSTICKERS\tPRICE\tSTATUS\t")
				for _, p := range packs {
					status := ""
					if claimed[p.ID] {
						status = "claimed"
					}
					fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t\n", p.ID, p.Name, p.StickerCount, p.DisplayPrice(), status)
				}
				return tw.Flush()
			})
		},
	}
}

func (r *runner) claimCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "claim PACK_ID",
		Short: "Claim a free sticker pack",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "pack id")
			if err != nil {
				return err
			}
			return r.withContainer(cmd, func(ctx context.Context, c *app.Container) error {
				claim, err := c.Billing.ClaimPack(ctx, id)
				if err != nil {
					return err
				}
				if r.jsonOut {
					return r.printJSON(claim)
				}
				if claim.AlreadyClaimed {
					fmt.Fprintf(r.out, "Pack %d was already claimed.\n", id)
					return nil
				}
				fmt.Fprintf(r.out, "Pack %d claimed.\n", id)
				return nil
			})
		},
	}
}

func (r *runner) createCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create PHOTO",
		Short: "Create a sticker from a photo (costs one credit)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withContainer(cmd, func(ctx context.Context, c *app.Container) error {
				sticker, err := c.Creation.CreateSticker(ctx, args[0])
				if err != nil {
					return err
				}
				if r.jsonOut {
					return r.printJSON(sticker)
				}
				fmt.Fprintf(r.out, "Created %s at %s\n", sticker.ID, sticker.ImageLocation)
				return nil
			})
		},
	}
}

func (r *runner) stickersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stickers",
		Short: "List created stickers, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withContainer(cmd, func(ctx context.Context, c *app.Container) error {
				list, err := c.Stickers.ListAll(ctx)
				if err != nil {
					return err
				}
				if r.jsonOut {
					return r.printJSON(list)
				}
				if len(list) == 0 {
					fmt.Fprintln(r.out, "No stickers yet.")
					return nil
				}
				tw := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tCREATED\tIMAGE\t")
				for _, s := range list {
					fmt.Fprintf(tw, "%s\t%s\t%s\t\n", s.ID, s.CreatedAt.Local().Format("2006-01-02 15:04"), s.ImageLocation)
				}
				return tw.Flush()
			})
		},
	}
}

func (r *runner) exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export STICKER_ID",
		Short: "Copy a sticker image to the export directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withContainer(cmd, func(ctx context.Context, c *app.Container) error {
				path, err := c.Gallery.Save(ctx, args[0])
				if err != nil {
					return err
				}
				if r.jsonOut {
					return r.printJSON(map[string]string{"stickerId": args[0], "path": path})
				}
				fmt.Fprintf(r.out, "Saved to %s\n", path)
				return nil
			})
		},
	}
}
