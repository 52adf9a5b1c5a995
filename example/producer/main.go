package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strconv"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	"github.com/quarks-tech/orderflow-go/internal/config"
	"github.com/quarks-tech/orderflow-go/internal/orders"
	"github.com/quarks-tech/orderflow-go/pkg/eventbus"
	"github.com/quarks-tech/orderflow-go/pkg/transport/rabbitmq"
)

// Publishes order created events straight to the broker. Every n-th event
// carries no user and is rejected by the consumer, so it reaches the
// dead-letter queue on its first delivery.
func main() {
	workers := flag.Int("workers", 4, "concurrent publishers")
	count := flag.Int("count", 100, "events per publisher")
	invalidEvery := flag.Int("invalid-every", 10, "publish every n-th event without a user, 0 disables")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	client := rabbitmq.NewClient(&rabbitmq.Config{
		Address: cfg.RabbitMQ.Address,
		AMQP: amqp.Config{
			Vhost: cfg.RabbitMQ.VHost,
			SASL: []amqp.Authentication{
				&amqp.PlainAuth{
					Username: cfg.RabbitMQ.User,
					Password: cfg.RabbitMQ.Password,
				},
			},
		},
	})

	defer client.Close()

	publisher := eventbus.NewPublisher(rabbitmq.NewSender(client))

	var eg errgroup.Group

	for i := 1; i <= *workers; i++ {
		i := i
		eg.Go(func() error {
			fmt.Println("start publisher: ", i)

			for c := 1; c <= *count; c++ {
				e := &orders.CreatedEvent{
					OrderID: uuid.NewString(),
					UserID:  "user-" + strconv.Itoa(i),
					Products: []orders.Product{
						{ProductID: "product-" + strconv.Itoa(c), Quantity: 1 + c%3, Price: float64(c)},
					},
					ShippingAddress: "warehouse " + strconv.Itoa(i),
				}

				if *invalidEvery > 0 && c%*invalidEvery == 0 {
					e.UserID = ""
				}

				err := publisher.Publish(context.Background(), orders.CreatedEventType, e, eventbus.WithSubject(e.OrderID))
				if err != nil {
					fmt.Println(err)
				}
			}

			fmt.Println("stop publisher: ", i)

			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		log.Fatal(err)
	}
}
