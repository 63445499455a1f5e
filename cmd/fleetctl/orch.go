package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"

	"github.com/zph/fleetd/pkg/ferrors"
)

const (
	keySSHConfig    = "ssh_config"
	keyIdentityKey  = "ssh_identity_key"
	keyIdentityPub  = "ssh_identity_pub"
	keyBackend      = "backend"
	sshConfigFlag   = "file"
)

var sshConfigFile string

var cephadmCmd = &cobra.Command{
	Use:   "cephadm",
	Short: "Credential and host plumbing",
}

var cephadmSetSSHConfigCmd = &cobra.Command{
	Use:   "set-ssh-config",
	Short: "Store an ssh_config blob read from --file (or stdin)",
	RunE: func(cmd *cobra.Command, args []string) error {
		var data []byte
		var err error
		if sshConfigFile != "" {
			data, err = os.ReadFile(sshConfigFile)
		} else {
			data, err = readAllStdin()
		}
		if err != nil {
			return err
		}
		return theApp.configStoreSet(keySSHConfig, data)
	},
}

var cephadmClearSSHConfigCmd = &cobra.Command{
	Use:   "clear-ssh-config",
	Short: "Remove the stored ssh_config blob",
	RunE: func(cmd *cobra.Command, args []string) error {
		return theApp.configStoreDelete(keySSHConfig)
	},
}

var cephadmGenerateKeyCmd = &cobra.Command{
	Use:   "generate-key",
	Short: "Generate and store a fresh SSH identity keypair",
	RunE: func(cmd *cobra.Command, args []string) error {
		priv, err := rsa.GenerateKey(rand.Reader, 4096)
		if err != nil {
			return err
		}
		privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})

		pub, err := ssh.NewPublicKey(&priv.PublicKey)
		if err != nil {
			return err
		}
		pubBytes := ssh.MarshalAuthorizedKey(pub)

		if err := theApp.configStoreSet(keyIdentityKey, privPEM); err != nil {
			return err
		}
		return theApp.configStoreSet(keyIdentityPub, pubBytes)
	},
}

var cephadmClearKeyCmd = &cobra.Command{
	Use:   "clear-key",
	Short: "Remove the stored SSH identity keypair",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := theApp.configStoreDelete(keyIdentityKey); err != nil {
			return err
		}
		return theApp.configStoreDelete(keyIdentityPub)
	},
}

var cephadmGetPubKeyCmd = &cobra.Command{
	Use:   "get-pub-key",
	Short: "Print the stored SSH public key",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, ok, err := theApp.configStoreGet(keyIdentityPub)
		if err != nil {
			return err
		}
		if !ok {
			return ferrors.New(ferrors.KindNotFound, "no ssh identity key has been generated")
		}
		fmt.Print(string(data))
		return nil
	},
}

var cephadmGetUserCmd = &cobra.Command{
	Use:   "get-user",
	Short: "Print the SSH user fleetd dispatches as",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(flagSSHUser)
		return nil
	},
}

var cephadmCheckHostCmd = &cobra.Command{
	Use:   "check-host HOST",
	Short: "Dial HOST and verify its reported hostname",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := theApp.remote.CheckHost(context.Background(), args[0])
		if err != nil {
			return err
		}
		enc, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(enc))
		if !res.OK {
			return ferrors.New(ferrors.KindHostValidation, res.Reason)
		}
		return nil
	},
}

var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Orchestrator selection",
}

var setBackendCmd = &cobra.Command{
	Use:   "backend NAME",
	Short: "Select the active orchestrator backend",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return theApp.configStoreSet(keyBackend, []byte(args[0]))
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print a summary of fleet and upgrade state",
	RunE: func(cmd *cobra.Command, args []string) error {
		summary := map[string]any{
			"hosts":          len(theApp.inventory.Hosts()),
			"upgrade_state":  theApp.states.State(),
			"health_checks":  theApp.health.Active(),
		}
		enc, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(enc))
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel completions on the worker pool that have not started; running work finishes",
	RunE: func(cmd *cobra.Command, args []string) error {
		theApp.pool.CancelCompletions()
		return nil
	},
}

func readAllStdin() ([]byte, error) {
	info, err := os.Stdin.Stat()
	if err != nil {
		return nil, err
	}
	if info.Mode()&os.ModeCharDevice != 0 {
		return nil, ferrors.New(ferrors.KindValidation, "no --file given and stdin is a terminal")
	}
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, err := os.Stdin.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if err != nil {
			break
		}
	}
	return buf, nil
}

func init() {
	cephadmSetSSHConfigCmd.Flags().StringVar(&sshConfigFile, sshConfigFlag, "", "path to the ssh_config file to store")
	cephadmCmd.AddCommand(
		cephadmSetSSHConfigCmd, cephadmClearSSHConfigCmd,
		cephadmGenerateKeyCmd, cephadmClearKeyCmd,
		cephadmGetPubKeyCmd, cephadmGetUserCmd, cephadmCheckHostCmd,
	)
	setCmd.AddCommand(setBackendCmd)
	rootCmd.AddCommand(cephadmCmd, setCmd, statusCmd, cancelCmd)
}
