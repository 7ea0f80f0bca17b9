/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package inrccli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/inrcfi/inrc/chaincode/vault"
	"github.com/inrcfi/inrc/pkg/vaultclient"
	"github.com/spf13/cobra"
)

func (c *CLI) vaultCommands() []*cobra.Command {
	return []*cobra.Command{
		c.initializeCmd(),
		c.initializeConfigCmd(),
		c.updateConfigCmd(),
		c.publishPriceCmd(),
		c.mintUsdcCmd(),
		c.transferCmd(),
		c.amountCmd("deposit", "depositUsdcAndMintInrc", vault.UsdcDecimals,
			"Deposit USDC collateral and mint INRC up to the minimum health factor.",
			func(s *session) func(context.Context, uint64) (*vaultclient.Committed[*vault.UserCollateral], error) {
				return s.client.Deposit
			}),
		c.amountCmd("burn", "burnInrcAndWithdrawUsdc", vault.MintDecimals,
			"Burn INRC and withdraw the matching USDC collateral.",
			func(s *session) func(context.Context, uint64) (*vaultclient.Committed[*vault.UserCollateral], error) {
				return s.client.Burn
			}),
		c.amountCmd("withdraw-collateral", "withdrawCollateral", vault.UsdcDecimals,
			"Withdraw USDC collateral in excess of the minimum health factor.",
			func(s *session) func(context.Context, uint64) (*vaultclient.Committed[*vault.UserCollateral], error) {
				return s.client.WithdrawCollateral
			}),
		c.liquidateCmd(),
		c.configCmd(),
		c.collateralCmd(),
		c.healthCmd(),
		c.balanceCmd(),
		c.priceCmd(),
		c.positionsCmd(),
		c.accountCmd(),
	}
}

// run connects and executes fn with the session.
func (c *CLI) run(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	s, err := c.connect(cmd)
	if err != nil {
		return err
	}
	defer s.close()
	return fn(cmd.Context(), s)
}

func (c *CLI) initializeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "initialize",
		Short: "Initialize the vault with the submitter as authority.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, s *session) error {
				return submit(s, ctx, "initialize", nil, s.client.Initialize, renderConfig)
			})
		},
	}
}

func (c *CLI) initializeConfigCmd() *cobra.Command {
	var usdcAuthority string
	cmd := &cobra.Command{
		Use:   "initialize-config",
		Short: "Initialize the vault, optionally naming a separate USDC mint authority.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, s *session) error {
				return submit(s, ctx, "initializeConfig", []string{usdcAuthority},
					func(ctx context.Context) (*vaultclient.Committed[*vault.Config], error) {
						return s.client.InitializeConfig(ctx, usdcAuthority)
					}, renderConfig)
			})
		},
	}
	cmd.Flags().StringVar(&usdcAuthority, "usdc-mint-authority", "", "Account allowed to mint USDC (defaults to the submitter)")
	return cmd
}

func (c *CLI) updateConfigCmd() *cobra.Command {
	var (
		oracleAuthority      string
		priceFeedID          string
		liquidationThreshold uint64
		liquidationBonus     uint64
		minHealthFactor      uint64
		maxPriceAge          uint64
	)
	cmd := &cobra.Command{
		Use:   "update-config",
		Short: "Update the vault risk parameters. Authority only.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			update := &vault.ConfigUpdate{}
			flags := cmd.Flags()
			if flags.Changed("oracle-authority") {
				update.OracleAuthority = &oracleAuthority
			}
			if flags.Changed("price-feed") {
				update.PriceFeedID = &priceFeedID
			}
			if flags.Changed("liquidation-threshold") {
				update.LiquidationThreshold = &liquidationThreshold
			}
			if flags.Changed("liquidation-bonus") {
				update.LiquidationBonus = &liquidationBonus
			}
			if flags.Changed("min-health-factor") {
				update.MinHealthFactor = &minHealthFactor
			}
			if flags.Changed("max-price-age") {
				update.MaxPriceAge = &maxPriceAge
			}
			return c.run(cmd, func(ctx context.Context, s *session) error {
				return submit(s, ctx, "updateConfig", nil,
					func(ctx context.Context) (*vaultclient.Committed[*vault.Config], error) {
						return s.client.UpdateConfig(ctx, update)
					}, renderConfig)
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&oracleAuthority, "oracle-authority", "", "Account allowed to publish prices")
	flags.StringVar(&priceFeedID, "price-feed", "", "Oracle feed used to value collateral")
	flags.Uint64Var(&liquidationThreshold, "liquidation-threshold", 0, "Health factor (percent) below which positions can be liquidated")
	flags.Uint64Var(&liquidationBonus, "liquidation-bonus", 0, "Percentage paid to liquidators on top of the repaid value")
	flags.Uint64Var(&minHealthFactor, "min-health-factor", 0, "Health factor (percent) required after minting or withdrawing")
	flags.Uint64Var(&maxPriceAge, "max-price-age", 0, "Oldest accepted oracle observation in seconds")
	return cmd
}

func (c *CLI) publishPriceCmd() *cobra.Command {
	var (
		feedID      string
		expo        int32
		conf        uint64
		publishTime int64
	)
	cmd := &cobra.Command{
		Use:   "publish-price <price>",
		Short: "Publish an INR per USD oracle observation. Oracle authority only.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			price, err := parsePrice(args[0], expo)
			if err != nil {
				return err
			}
			if publishTime == 0 {
				publishTime = c.Clock.Now().Unix()
			}
			feed := &vault.PriceFeed{ID: feedID, Price: price, Expo: expo, Conf: conf, PublishTime: publishTime}
			return c.run(cmd, func(ctx context.Context, s *session) error {
				return submit(s, ctx, "publishPrice",
					[]string{feed.ID, strconv.FormatInt(price, 10), strconv.FormatInt(int64(expo), 10), strconv.FormatUint(conf, 10), strconv.FormatInt(publishTime, 10)},
					func(ctx context.Context) (*vaultclient.Committed[*vault.PriceFeed], error) {
						return s.client.PublishPrice(ctx, feed)
					}, renderPrice)
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&feedID, "feed", vault.UsdcInrFeedID, "Oracle feed id")
	flags.Int32Var(&expo, "expo", -8, "Decimal exponent of the published mantissa")
	flags.Uint64Var(&conf, "conf", 0, "Confidence interval in mantissa units")
	flags.Int64Var(&publishTime, "publish-time", 0, "Observation time in unix seconds (defaults to now)")
	return cmd
}

func (c *CLI) mintUsdcCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mint-usdc <recipient> <amount>",
		Short: "Mint USDC to an account. USDC mint authority only.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[1], vault.UsdcDecimals)
			if err != nil {
				return err
			}
			return c.run(cmd, func(ctx context.Context, s *session) error {
				return submit(s, ctx, "mintUsdc", []string{args[0], strconv.FormatUint(amount, 10)},
					func(ctx context.Context) (*vaultclient.Committed[*vault.TokenAccount], error) {
						return s.client.MintUsdc(ctx, args[0], amount)
					}, renderAccount)
			})
		},
	}
}

func (c *CLI) transferCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transfer <symbol> <recipient> <amount>",
		Short: "Transfer INRC or USDC to another account.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol, recipient := args[0], args[1]
			amount, err := parseAmount(args[2], decimalsOf(symbol))
			if err != nil {
				return err
			}
			return c.run(cmd, func(ctx context.Context, s *session) error {
				return submit(s, ctx, "transfer", []string{symbol, recipient, strconv.FormatUint(amount, 10)},
					func(ctx context.Context) (*vaultclient.Committed[*vault.TokenAccount], error) {
						return s.client.Transfer(ctx, symbol, recipient, amount)
					}, renderAccount)
			})
		},
	}
}

// amountCmd builds a command that submits a single token amount.
func (c *CLI) amountCmd(use, method string, decimals uint8, short string, fn func(*session) func(context.Context, uint64) (*vaultclient.Committed[*vault.UserCollateral], error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <amount>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[0], decimals)
			if err != nil {
				return err
			}
			return c.run(cmd, func(ctx context.Context, s *session) error {
				call := fn(s)
				return submit(s, ctx, method, []string{strconv.FormatUint(amount, 10)},
					func(ctx context.Context) (*vaultclient.Committed[*vault.UserCollateral], error) {
						return call(ctx, amount)
					}, renderCollateral)
			})
		},
	}
}

func (c *CLI) liquidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "liquidate <user> <amount>",
		Short: "Repay INRC debt of an unhealthy position in exchange for its collateral plus a bonus.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			user := args[0]
			amount, err := parseAmount(args[1], vault.MintDecimals)
			if err != nil {
				return err
			}
			return c.run(cmd, func(ctx context.Context, s *session) error {
				return submit(s, ctx, "liquidate", []string{user, strconv.FormatUint(amount, 10)},
					func(ctx context.Context) (*vaultclient.Committed[*vault.UserCollateral], error) {
						return s.client.Liquidate(ctx, user, amount)
					}, renderCollateral)
			})
		},
	}
}

func query[T any](c *CLI, cmd *cobra.Command, fn func(*vaultclient.Client, context.Context) (T, error), render func(io.Writer, T)) error {
	return c.run(cmd, func(ctx context.Context, s *session) error {
		value, err := fn(s.client, ctx)
		if err != nil {
			return err
		}
		render(c.Out, value)
		return nil
	})
}

func optionalArg(args []string, i int) string {
	if len(args) > i {
		return args[i]
	}
	return ""
}

func (c *CLI) configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the vault configuration.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return query(c, cmd, (*vaultclient.Client).Config, renderConfig)
		},
	}
}

func (c *CLI) collateralCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "collateral [owner]",
		Short: "Show a collateral position. Defaults to the submitter.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return query(c, cmd, func(vc *vaultclient.Client, ctx context.Context) (*vault.UserCollateral, error) {
				return vc.Collateral(ctx, optionalArg(args, 0))
			}, renderCollateral)
		},
	}
}

func (c *CLI) healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health [owner]",
		Short: "Show the health factor of a position at the current oracle price.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return query(c, cmd, func(vc *vaultclient.Client, ctx context.Context) (*vault.HealthReport, error) {
				return vc.HealthFactor(ctx, optionalArg(args, 0))
			}, renderHealth)
		},
	}
}

func (c *CLI) balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance <symbol> [owner]",
		Short: "Show a token balance.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return query(c, cmd, func(vc *vaultclient.Client, ctx context.Context) (*vault.TokenAccount, error) {
				return vc.Balance(ctx, args[0], optionalArg(args, 1))
			}, renderAccount)
		},
	}
}

func (c *CLI) priceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "price [feed]",
		Short: "Show the stored oracle observation. Defaults to the configured feed.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return query(c, cmd, func(vc *vaultclient.Client, ctx context.Context) (*vault.PriceFeed, error) {
				return vc.Price(ctx, optionalArg(args, 0))
			}, renderPrice)
		},
	}
}

func (c *CLI) positionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "positions",
		Short: "List every collateral position with its health.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return query(c, cmd, (*vaultclient.Client).Positions, renderPositions)
		},
	}
}

func (c *CLI) accountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "account",
		Short: "Show the account id of the configured identity.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return query(c, cmd, (*vaultclient.Client).AccountID, func(w io.Writer, id string) {
				fmt.Fprintln(w, id)
			})
		},
	}
}
