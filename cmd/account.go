package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tranvictor/auctioneer/accounts"
	"github.com/tranvictor/auctioneer/util"
	"github.com/tranvictor/auctioneer/util/account"
)

var accountCmd = &cobra.Command{
	Use:     "account",
	Aliases: []string{"acc", "wallet"},
	Short:   "Manage your accounts",
}

func accountStore() *accounts.Store {
	return accounts.NewStore(accounts.DefaultDir(), log)
}

func promptDescription() string {
	return util.PromptInputWithValidation(appUI,
		"Please enter a description of this account, it is searched when you pass --from",
		nil)
}

func handleAddKeystoreGivenPath(store *accounts.Store, keystorePath string) error {
	address, err := accounts.VerifyKeystore(keystorePath)
	if err != nil {
		return fmt.Errorf("keystore path verification failed: %w", err)
	}
	appUI.Info("This keystore is for %s", address.Hex())
	desc := accounts.AccDesc{
		Address: address.Hex(),
		Kind:    accounts.KindKeystore,
		Keypath: keystorePath,
		Desc:    promptDescription(),
	}
	if err := store.StoreAccountRecord(desc); err != nil {
		return fmt.Errorf("couldn't store the account: %w", err)
	}
	appUI.Success("Stored %s/%s.json. It points at your keystore file so please don't move that file later.", store.Dir(), desc.Address)
	return nil
}

func handleAddKeystore(store *accounts.Store) error {
	appUI.Warn("Keystore is convenient but not so safe. Use it for accounts holding little.")
	path := util.PromptInputWithValidation(appUI, "Please enter the path to your keystore file", nil)
	return handleAddKeystoreGivenPath(store, path)
}

func handleAddPrivateKey(store *accounts.Store) error {
	appUI.Warn("Storing plain private key is NOT secure. Let's encrypt it to a Keystore.")
	privHex, err := appUI.Password("Paste your private key in hex, it is not displayed: ")
	if err != nil {
		return err
	}
	if _, _, err := account.PrivateKeyFromHex(privHex); err != nil {
		return fmt.Errorf("that is not a private key: %w", err)
	}
	passphrase, err := appUI.Password("Enter a passphrase to encrypt the private key: ")
	if err != nil {
		return err
	}
	confirm, err := appUI.Password("Enter it again: ")
	if err != nil {
		return err
	}
	if confirm != passphrase {
		return fmt.Errorf("the passphrases differ")
	}
	stop := appUI.Spinner("Encrypting")
	path, _, err := store.StorePrivateKeyWithKeystore(privHex, passphrase)
	stop()
	if err != nil {
		return fmt.Errorf("private key encryption failed: %w", err)
	}
	appUI.Success("Stored encrypted private key at %s.", path)
	return handleAddKeystoreGivenPath(store, path)
}

// handleAddAskedKey remembers only the address; the key is pasted on every
// signature.
func handleAddAskedKey(store *accounts.Store) error {
	privHex, err := appUI.Password("Paste your private key in hex once to check it, it is not stored: ")
	if err != nil {
		return err
	}
	address, _, err := account.PrivateKeyFromHex(privHex)
	if err != nil {
		return fmt.Errorf("that is not a private key: %w", err)
	}
	desc := accounts.AccDesc{
		Address: address.Hex(),
		Kind:    accounts.KindPrivateKey,
		Desc:    promptDescription(),
	}
	if err := store.StoreAccountRecord(desc); err != nil {
		return fmt.Errorf("couldn't store the account: %w", err)
	}
	appUI.Success("Added %s. You will be asked for its key before each signature.", desc.Address)
	return nil
}

var addAccountCmd = &cobra.Command{
	Use:   "add",
	Short: "Add an account to auctioneer",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := accountStore()
		options := []string{
			"keystore file",
			"private key, encrypted to a keystore",
			"private key, asked on every signature",
		}
		switch appUI.Choose("How do you sign with this account?", options) {
		case 0:
			return handleAddKeystore(store)
		case 1:
			return handleAddPrivateKey(store)
		case 2:
			return handleAddAskedKey(store)
		}
		return fmt.Errorf("no account kind chosen")
	},
}

var listAccountCmd = &cobra.Command{
	Use:   "list",
	Short: "Show all of your accounts",
	Run: func(cmd *cobra.Command, args []string) {
		accs := accountStore().GetAccounts()
		appUI.Info("You have %d accounts:", len(accs))
		rows := make([][]string, len(accs))
		for i, acc := range accs {
			rows[i] = []string{fmt.Sprintf("%d", i+1), acc.Address, acc.Kind, acc.Desc}
		}
		if len(rows) > 0 {
			appUI.Table([]string{"#", "Address", "Kind", "Description"}, rows)
		}
		appUI.Info("If you want to add more accounts to the list, use following command:\n> auctioneer account add")
	},
}

func init() {
	accountCmd.AddCommand(listAccountCmd)
	accountCmd.AddCommand(addAccountCmd)
	rootCmd.AddCommand(accountCmd)
}
