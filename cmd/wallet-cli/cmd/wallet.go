package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"wallet-signer/internal/client"
	"wallet-signer/pkg/bip39"
	"wallet-signer/pkg/wallet/types"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "查看钱包状态",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd.Context(), func(ctx context.Context, c *client.Client) error {
			status, err := c.GetWalletStatus(ctx)
			if err != nil {
				return err
			}
			fmt.Println(status)
			return nil
		})
	},
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "初始化钱包并创建第一个 HD 账户",
	Long:  `未指定 --mnemonic 时生成新的 12 词助记词并打印一次, 请离线抄写保存。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mnemonic, _ := cmd.Flags().GetString("mnemonic")
		name, _ := cmd.Flags().GetString("name")

		if mnemonic == "" {
			var err error
			if mnemonic, err = bip39.Generate(128); err != nil {
				return err
			}
			fmt.Println("\n================ 助记词 (请妥善保存) ================")
			fmt.Println(mnemonic)
			fmt.Println("=====================================================")
		} else if !bip39.Validate(mnemonic) {
			return fmt.Errorf("无效的助记词")
		}

		password, err := readNewPassword()
		if err != nil {
			return err
		}

		return withClient(cmd.Context(), func(ctx context.Context, c *client.Client) error {
			acc, err := c.SetupWallet(ctx, password, bip39.Normalize(mnemonic),
				&types.AddAccountParams{Type: types.AccountTypeHD, Name: name})
			if err != nil {
				return err
			}
			fmt.Printf("✅ 钱包已初始化, 首个账户: %s (%s)\n", acc.Address, acc.DerivationPath)
			return nil
		})
	},
}

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "解锁钱包",
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readPassword("请输入钱包密码: ")
		if err != nil {
			return err
		}
		return withClient(cmd.Context(), func(ctx context.Context, c *client.Client) error {
			if err := c.UnlockWallet(ctx, password); err != nil {
				return err
			}
			fmt.Println("🔓 已解锁")
			return nil
		})
	},
}

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "锁定钱包",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd.Context(), func(ctx context.Context, c *client.Client) error {
			if err := c.LockWallet(ctx); err != nil {
				return err
			}
			fmt.Println("🔒 已锁定")
			return nil
		})
	},
}

var mnemonicCmd = &cobra.Command{
	Use:   "mnemonic",
	Short: "离线生成 BIP-39 助记词",
	RunE: func(cmd *cobra.Command, args []string) error {
		bits, _ := cmd.Flags().GetInt("bits")
		m, err := bip39.Generate(bits)
		if err != nil {
			return err
		}
		fmt.Println(m)
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "监听钱包状态和待审批列表的变化",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		return withClient(ctx, func(ctx context.Context, c *client.Client) error {
			offStatus := c.OnWalletStatusUpdated(func(s types.WalletStatus) {
				fmt.Printf("[status] %s\n", s)
			})
			defer offStatus()
			offApprovals := c.OnApprovalsUpdated(func(list []*types.Activity) {
				fmt.Printf("[approvals] %d 个待审批\n", len(list))
				for _, a := range list {
					printActivity(a)
				}
			})
			defer offApprovals()

			select {
			case <-ctx.Done():
				return nil
			case <-c.Done():
				return fmt.Errorf("与后台的连接已断开")
			}
		})
	},
}

func init() {
	setupCmd.Flags().String("mnemonic", "", "恢复已有助记词")
	setupCmd.Flags().String("name", "Account 1", "首个账户名称")
	mnemonicCmd.Flags().Int("bits", 128, "熵位数 (128 = 12 词, 256 = 24 词)")

	rootCmd.AddCommand(statusCmd, setupCmd, unlockCmd, lockCmd, mnemonicCmd, watchCmd)
}
