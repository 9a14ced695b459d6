package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"wallet-signer/internal/client"
	"wallet-signer/pkg/errno"
	"wallet-signer/pkg/wallet/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var approvalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "列出待审批的活动",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd.Context(), func(ctx context.Context, c *client.Client) error {
			list, err := c.GetApprovals(ctx)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Println("没有待审批的活动")
				return nil
			}
			for _, a := range list {
				printActivity(a)
			}
			return nil
		})
	},
}

var approveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "批准活动: 提供未签名交易 (--raw-tx) 或已签名交易 (--signed-raw-tx)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rawTx, _ := cmd.Flags().GetString("raw-tx")
		signedRawTx, _ := cmd.Flags().GetString("signed-raw-tx")
		result := types.ApprovalResult{Approved: true, RawTx: rawTx, SignedRawTx: signedRawTx}

		return withClient(cmd.Context(), func(ctx context.Context, c *client.Client) error {
			if err := c.Approve(ctx, args[0], result); err != nil {
				return err
			}
			fmt.Println("✅ 已批准")
			return nil
		})
	},
}

var declineCmd = &cobra.Command{
	Use:   "decline <id>",
	Short: "拒绝活动",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd.Context(), func(ctx context.Context, c *client.Client) error {
			err := c.Approve(ctx, args[0], types.ApprovalResult{Approved: false})
			// 拒绝本身以 Declined 结算, 对操作者而言是成功
			if err != nil && !isDeclined(err) {
				return err
			}
			fmt.Println("❌ 已拒绝")
			return nil
		})
	},
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "发起交易, 阻塞直到被审批",
	RunE: func(cmd *cobra.Command, args []string) error {
		chainID, _ := cmd.Flags().GetUint64("chain")
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		value, _ := cmd.Flags().GetString("value")
		data, _ := cmd.Flags().GetString("data")
		source, _ := cmd.Flags().GetString("source")
		wait, _ := cmd.Flags().GetDuration("wait")

		params, err := buildTxParams(chainID, to, value, data)
		if err != nil {
			return err
		}

		// 审批需要人工操作, 不使用默认请求超时
		ctx, cancel := context.WithTimeout(cmd.Context(), wait)
		defer cancel()

		return withClient(ctx, func(ctx context.Context, c *client.Client) error {
			fmt.Println("⏳ 等待审批...")
			hash, err := c.SendTransaction(ctx, chainID, from, params, source)
			if err != nil {
				return err
			}
			fmt.Printf("✅ 交易已广播: %s\n", hash)
			return nil
		})
	},
}

// buildTxParams value 单位为 ETH
func buildTxParams(chainID uint64, to, value, data string) (types.TxParams, error) {
	var params types.TxParams
	params.ChainID = (*hexutil.Big)(new(big.Int).SetUint64(chainID))

	if to != "" {
		if !common.IsHexAddress(to) {
			return params, fmt.Errorf("无效的地址 %q", to)
		}
		addr := common.HexToAddress(to)
		params.To = &addr
	}
	if value != "" {
		amount, err := decimal.NewFromString(value)
		if err != nil || amount.IsNegative() {
			return params, fmt.Errorf("无效的金额 %q", value)
		}
		wei := amount.Shift(18)
		if !wei.Equal(wei.Truncate(0)) {
			return params, fmt.Errorf("金额精度超过 18 位小数")
		}
		params.Value = (*hexutil.Big)(wei.BigInt())
	}
	if data != "" {
		b, err := hexutil.Decode(data)
		if err != nil {
			return params, fmt.Errorf("无效的 data: %w", err)
		}
		d := hexutil.Bytes(b)
		params.Data = &d
	}
	return params, nil
}

func isDeclined(err error) bool {
	return errors.Is(err, errno.ErrDeclined)
}

func printActivity(a *types.Activity) {
	fmt.Printf("- %s  source=%s  created=%s\n", a.ID, a.Source, a.CreatedAt.Format("2006-01-02 15:04:05"))
	if p, ok := a.Payload.(*types.TransactionPayload); ok {
		b, _ := json.MarshalIndent(p.TxParams, "    ", "  ")
		fmt.Printf("    chain=%d  account=%s\n    %s\n", p.ChainID, p.AccountAddress, b)
	}
}

func init() {
	approveCmd.Flags().String("raw-tx", "", "未签名交易 (hex)")
	approveCmd.Flags().String("signed-raw-tx", "", "已签名交易 (hex)")
	approveCmd.MarkFlagsMutuallyExclusive("raw-tx", "signed-raw-tx")
	approveCmd.MarkFlagsOneRequired("raw-tx", "signed-raw-tx")

	sendCmd.Flags().Uint64("chain", 1, "chainId")
	sendCmd.Flags().String("from", "", "发送账户地址")
	sendCmd.Flags().String("to", "", "接收地址")
	sendCmd.Flags().String("value", "", "金额 (ETH)")
	sendCmd.Flags().String("data", "", "调用数据 (hex)")
	sendCmd.Flags().String("source", "wallet-cli", "请求来源")
	sendCmd.Flags().Duration("wait", 10*time.Minute, "等待审批的最长时间")
	_ = sendCmd.MarkFlagRequired("from")

	rootCmd.AddCommand(approvalsCmd, approveCmd, declineCmd, sendCmd)
}
