package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"wallet-signer/internal/model"
	"wallet-signer/internal/service/mq"
	"wallet-signer/pkg/database"

	"github.com/spf13/cobra"
)

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "已结算活动",
}

var activityTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "订阅 activity.settled 事件并打印",
	RunE: func(cmd *cobra.Command, args []string) error {
		mqType, _ := cmd.Flags().GetString("mq")
		group, _ := cmd.Flags().GetString("group")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		var consumer mq.Consumer
		switch mqType {
		case "kafka":
			brokers, _ := cmd.Flags().GetStringSlice("brokers")
			consumer = mq.NewKafkaConsumer(brokers, group)
		case "redis":
			addr, _ := cmd.Flags().GetString("redis-addr")
			rdb, err := database.ConnectRedis(addr, "", 0)
			if err != nil {
				return err
			}
			defer rdb.Close()
			host, _ := os.Hostname()
			consumer = mq.NewRedisConsumer(rdb, group, host)
		default:
			return fmt.Errorf("未知消息队列类型 %q", mqType)
		}
		defer consumer.Close()

		return tailActivities(ctx, consumer)
	},
}

func tailActivities(ctx context.Context, consumer mq.Consumer) error {
	return consumer.Subscribe(ctx, mq.TopicActivitySettled, func(msg *mq.Message) error {
		var rec model.Activity
		if err := json.Unmarshal(msg.Payload, &rec); err != nil {
			return err
		}
		fmt.Printf("%s  chain=%d  %s  value=%s wei  tx=%s\n",
			rec.TimeAt.Format("2006-01-02 15:04:05"), rec.ChainID, rec.AccountAddress, rec.Value.String(), rec.TxHash)
		return nil
	})
}

func init() {
	activityTailCmd.Flags().String("mq", "redis", "消息队列类型: redis, kafka")
	activityTailCmd.Flags().String("group", "wallet-cli", "消费者组")
	activityTailCmd.Flags().String("redis-addr", "localhost:6379", "Redis 地址")
	activityTailCmd.Flags().StringSlice("brokers", []string{"localhost:9092"}, "Kafka brokers")

	activityCmd.AddCommand(activityTailCmd)
	rootCmd.AddCommand(activityCmd)
}
