package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"wallet-signer/internal/client"
	"wallet-signer/pkg/wallet/types"

	"github.com/spf13/cobra"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "账户管理",
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出所有账户",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd.Context(), func(ctx context.Context, c *client.Client) error {
			accounts, err := c.GetAccounts(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ADDRESS\tTYPE\tNAME\tPATH")
			for _, a := range accounts {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.Address, a.Type, a.Name, a.DerivationPath)
			}
			return w.Flush()
		})
	},
}

var accountAddCmd = &cobra.Command{
	Use:   "add",
	Short: "新增账户 (hd / privateKey / hardware)",
	RunE: func(cmd *cobra.Command, args []string) error {
		typ, _ := cmd.Flags().GetString("type")
		params := types.AddAccountParams{Type: types.AccountType(typ)}
		params.Name, _ = cmd.Flags().GetString("name")
		params.DerivationPath, _ = cmd.Flags().GetString("path")
		params.Address, _ = cmd.Flags().GetString("address")
		params.PublicKey, _ = cmd.Flags().GetString("public-key")

		switch params.Type {
		case types.AccountTypeHD, types.AccountTypeHardware:
		case types.AccountTypePrivateKey:
			key, err := readPassword("请输入要导入的私钥 (hex): ")
			if err != nil {
				return err
			}
			params.PrivateKey = key
		default:
			return fmt.Errorf("未知账户类型 %q", typ)
		}

		return withClient(cmd.Context(), func(ctx context.Context, c *client.Client) error {
			acc, err := c.AddAccount(ctx, params)
			if err != nil {
				return err
			}
			fmt.Printf("✅ 新账户: %s (%s)\n", acc.Address, acc.Type)
			return nil
		})
	},
}

var accountDeleteCmd = &cobra.Command{
	Use:   "delete <address>",
	Short: "删除账户 (需要钱包密码)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readPassword("请输入钱包密码以确认删除: ")
		if err != nil {
			return err
		}
		return withClient(cmd.Context(), func(ctx context.Context, c *client.Client) error {
			if err := c.DeleteAccount(ctx, password, args[0]); err != nil {
				return err
			}
			fmt.Printf("🗑  已删除 %s\n", args[0])
			return nil
		})
	},
}

var accountPubKeyCmd = &cobra.Command{
	Use:   "pubkey <address>",
	Short: "查看账户公钥",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd.Context(), func(ctx context.Context, c *client.Client) error {
			pub, err := c.GetPublicKey(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Println(pub)
			return nil
		})
	},
}

func init() {
	accountAddCmd.Flags().String("type", string(types.AccountTypeHD), "账户类型: hd, privateKey, hardware")
	accountAddCmd.Flags().String("name", "", "账户名称")
	accountAddCmd.Flags().String("path", "", "派生路径 (hd 默认取下一个空闲索引)")
	accountAddCmd.Flags().String("address", "", "硬件账户地址")
	accountAddCmd.Flags().String("public-key", "", "硬件账户公钥 (hex)")

	accountCmd.AddCommand(accountListCmd, accountAddCmd, accountDeleteCmd, accountPubKeyCmd)
	rootCmd.AddCommand(accountCmd)
}
