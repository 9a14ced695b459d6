package cmd

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	"wallet-signer/internal/client"
	"wallet-signer/internal/porter"
	"wallet-signer/pkg/config"
	"wallet-signer/pkg/wallet/types"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	serverAddr     string
	requestTimeout time.Duration
)

// rootCmd 代表基础命令，没有子命令时直接调用
var rootCmd = &cobra.Command{
	Use:   "wallet-cli",
	Short: "钱包签名服务命令行前台",
	Long: `通过 gRPC 连接 wallet-server 的后台通道。
可以初始化/解锁钱包、管理账户、发起交易以及审批待签名的活动。`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// 未显式指定 --timeout 时沿用 wallet.request_timeout
		if cmd.Flags().Changed("timeout") {
			return
		}
		if cfg, err := config.Load(); err == nil && cfg.Wallet.RequestTimeout > 0 {
			requestTimeout = cfg.Wallet.RequestTimeout
		}
	},
}

// Execute 将所有子命令添加到根命令并设置标志
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "localhost:50051", "wallet-server gRPC 地址")
	rootCmd.PersistentFlags().DurationVar(&requestTimeout, "timeout", 30*time.Second, "单个请求超时 (0 表示不超时)")
}

// connect 建立到后台的连接, 调用方负责 Close
func connect() (*client.Client, error) {
	conn, err := porter.DialGRPC(serverAddr)
	if err != nil {
		return nil, fmt.Errorf("连接 %s 失败: %w", serverAddr, err)
	}
	return client.New(porter.NewClient(conn, types.PorterChannel, porter.WithTimeout(requestTimeout))), nil
}

// withClient 打开连接并运行 fn
func withClient(ctx context.Context, fn func(ctx context.Context, c *client.Client) error) error {
	c, err := connect()
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(ctx, c)
}

func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("读取密码失败: %w", err)
	}
	return string(b), nil
}

// readNewPassword 要求输入两次
func readNewPassword() (string, error) {
	pw, err := readPassword("设置钱包密码: ")
	if err != nil {
		return "", err
	}
	confirm, err := readPassword("再次输入密码: ")
	if err != nil {
		return "", err
	}
	if pw != confirm {
		return "", fmt.Errorf("两次输入的密码不一致")
	}
	return pw, nil
}
