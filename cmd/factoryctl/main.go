package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/ruteri/collection-factory/api"
	"github.com/ruteri/collection-factory/api/clients"
	"github.com/ruteri/collection-factory/cmd/flags"
	"github.com/ruteri/collection-factory/httpserver"
	"github.com/ruteri/collection-factory/interfaces"
)

var predecessorFlag = &cli.StringFlag{
	Name:    "predecessor",
	Usage:   "account id the request is made on behalf of",
	EnvVars: []string{"FACTORY_PREDECESSOR"},
}

var tokenFlag = &cli.StringFlag{
	Name:    "token",
	Usage:   "bearer token of the predecessor account",
	EnvVars: []string{"FACTORY_TOKEN"},
}

func main() {
	app := &cli.App{
		Name:  "factoryctl",
		Usage: "Interact with a collection factory",
		Flags: []cli.Flag{flags.ServerAddrFlag, predecessorFlag, tokenFlag, flags.LogDebugFlag, flags.LogJsonFlag},
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create a child collection",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true, Usage: "child name, the account becomes <name>.<factory>"},
					&cli.StringFlag{Name: "metadata", Required: true, Usage: "metadata JSON, or @path to read it from a file"},
					&cli.UintFlag{Name: "size", Value: 0, Usage: "collection size"},
					&cli.StringFlag{Name: "price", Value: "0", Usage: "sale price in the smallest unit"},
					&cli.StringSliceFlag{Name: "royalty", Usage: "royalty share as account=basis_points, repeatable"},
					&cli.UintFlag{Name: "royalty-percent", Usage: "aggregate royalty in basis points"},
					&cli.StringFlag{Name: "deposit", Required: true, Usage: "attached deposit in the smallest unit"},
					&cli.StringFlag{Name: "signer-key", Usage: "ed25519:<base58> key added to the child account"},
					&cli.BoolFlag{Name: "wait", Usage: "wait until the request is committed or refunded"},
				},
				Action: createChild,
			},
			{
				Name:      "exists",
				Usage:     "Check whether a child is registered",
				ArgsUsage: "<child_id>",
				Action:    childExists,
			},
			{
				Name:      "hash-token",
				Usage:     "Print the digest of a bearer token for the [auth.tokens] config table",
				ArgsUsage: "<token>",
				Action:    hashToken,
			},
			{
				Name:      "balance",
				Usage:     "Show the runtime balance of an account",
				ArgsUsage: "<account_id>",
				Action:    balance,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newClient(cCtx *cli.Context) (*clients.FactoryClient, error) {
	client := &clients.FactoryClient{
		ServerAddr: strings.TrimSuffix(cCtx.String(flags.ServerAddrFlag.Name), "/"),
		Token:      cCtx.String(tokenFlag.Name),
	}
	if raw := cCtx.String(predecessorFlag.Name); raw != "" {
		predecessor, err := interfaces.NewAccountID(raw)
		if err != nil {
			return nil, err
		}
		client.Predecessor = predecessor
	}
	return client, nil
}

func createChild(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	client, err := newClient(cCtx)
	if err != nil {
		return err
	}
	if client.Predecessor == "" {
		return errors.New("--predecessor is required to create a child")
	}

	metadata, err := readMetadata(cCtx.String("metadata"))
	if err != nil {
		return err
	}
	deposit, err := interfaces.ParseBalance(cCtx.String("deposit"))
	if err != nil {
		return fmt.Errorf("invalid deposit: %w", err)
	}
	price, err := interfaces.ParseBalance(cCtx.String("price"))
	if err != nil {
		return fmt.Errorf("invalid price: %w", err)
	}
	royalties, err := parseRoyalties(cCtx.StringSlice("royalty"), cCtx.Uint("royalty-percent"))
	if err != nil {
		return err
	}

	req := api.CreateChildRequest{
		Name:            cCtx.String("name"),
		Metadata:        metadata,
		Size:            uint32(cCtx.Uint("size")),
		Sale:            interfaces.Sale{Royalties: royalties, Price: price},
		SignerPublicKey: cCtx.String("signer-key"),
	}

	logger.Debug("Requesting child creation", "name", req.Name, "deposit", deposit.String())
	resp, err := client.CreateChild(cCtx.Context, req, deposit, cCtx.Bool("wait"))
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func hashToken(cCtx *cli.Context) error {
	token := cCtx.Args().First()
	if token == "" {
		return errors.New("token argument is required")
	}
	fmt.Println(httpserver.HashToken(token))
	return nil
}

func childExists(cCtx *cli.Context) error {
	client, err := newClient(cCtx)
	if err != nil {
		return err
	}
	id, err := interfaces.NewAccountID(cCtx.Args().First())
	if err != nil {
		return err
	}

	exists, err := client.ChildExists(cCtx.Context, id)
	if err != nil {
		return err
	}
	return printJSON(api.ExistsResponse{Exists: exists})
}

func balance(cCtx *cli.Context) error {
	client, err := newClient(cCtx)
	if err != nil {
		return err
	}
	id, err := interfaces.NewAccountID(cCtx.Args().First())
	if err != nil {
		return err
	}

	amount, err := client.Balance(cCtx.Context, id)
	if err != nil {
		return err
	}
	return printJSON(api.BalanceResponse{AccountID: id, Balance: amount})
}

func readMetadata(raw string) (json.RawMessage, error) {
	data := []byte(raw)
	if path, ok := strings.CutPrefix(raw, "@"); ok {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, err
		}
	}
	if !json.Valid(data) {
		return nil, errors.New("metadata is not valid JSON")
	}
	return json.RawMessage(data), nil
}

// parseRoyalties returns nil when no share was given.
func parseRoyalties(shares []string, percent uint) (*interfaces.Royalties, error) {
	if len(shares) == 0 && percent == 0 {
		return nil, nil
	}

	royalties := &interfaces.Royalties{
		Accounts: make(map[interfaces.AccountID]interfaces.BasisPoint, len(shares)),
		Percent:  interfaces.BasisPoint(percent),
	}
	for _, share := range shares {
		account, bp, ok := strings.Cut(share, "=")
		if !ok {
			return nil, fmt.Errorf("invalid royalty %q, expected account=basis_points", share)
		}
		id, err := interfaces.NewAccountID(account)
		if err != nil {
			return nil, err
		}
		value, err := strconv.ParseUint(bp, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid royalty %q: %w", share, err)
		}
		royalties.Accounts[id] = interfaces.BasisPoint(value)
	}
	return royalties, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
