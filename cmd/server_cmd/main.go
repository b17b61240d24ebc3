package main

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/meantime-io/receivables-go/cmd"
	"github.com/meantime-io/receivables-go/logconfig"
)

const (
	ENV_CONFIG_FILE_PATH = "RECEIVABLES_CONFIG"
)

func main() {
	logconfig.ConfigProductionLogger()

	// A local .env is convenient in development; missing is fine.
	_ = godotenv.Load()

	// Tool to read environment variables
	viper.AutomaticEnv()

	// An optional configuration file; env vars win over it.
	if configFile := viper.GetString(ENV_CONFIG_FILE_PATH); configFile != "" {
		if !cmd.FileExists(configFile) {
			fmt.Printf("Server configuration file not found: %s\n", configFile)
			return
		}
		if !initializeViper(configFile) {
			return
		}
	}

	// Make the configuration
	bsc := PrepareBridgeServerConfig()
	if bsc == nil {
		fmt.Printf("Error loading bridge server configuration\n")
		return
	}

	fmt.Println("Starting receivables bridge server... press Ctrl+C to kill the server")
	// Start server and block.
	cmd.StartBridgeServerAndWait(bsc)
}

func initializeViper(filePath string) bool {
	viper.SetConfigFile(filePath)
	if err := viper.ReadInConfig(); err != nil {
		fmt.Printf("Error reading configuration file, %s", err)
		return false
	}
	return true
}

// PrepareBridgeServerConfig reads configuration variables and returns a
// BridgeServerConfig. Missing required values abort the start.
func PrepareBridgeServerConfig() *cmd.BridgeServerConfig {
	required := []string{
		"SOURCE_RPC_URL",
		"DEST_RPC_URL",
		"SIGNER_PRIV",
		"ESCROW_ADDR",
		"TRANSMITTER_ADDR",
		"ATTESTATION_URL",
		"DB_FILE_PATH",
	}
	for _, key := range required {
		if viper.GetString(key) == "" {
			fmt.Printf("Missing required configuration: %s\n", key)
			return nil
		}
	}

	httpIp := viper.GetString("HTTP_IP")
	if httpIp == "" {
		httpIp = "0.0.0.0"
	}
	httpPort := viper.GetString("HTTP_PORT")
	if httpPort == "" {
		httpPort = "8080"
	}

	return &cmd.BridgeServerConfig{
		// source side
		SourceRpcUrl:    viper.GetString("SOURCE_RPC_URL"),
		SourceChainId:   viper.GetInt64("SOURCE_CHAIN_ID"),
		TransmitterAddr: viper.GetString("TRANSMITTER_ADDR"),
		// destination side
		DestRpcUrl:   viper.GetString("DEST_RPC_URL"),
		DestChainId:  viper.GetInt64("DEST_CHAIN_ID"),
		EscrowAddr:   viper.GetString("ESCROW_ADDR"),
		SignerPriv:   viper.GetString("SIGNER_PRIV"),
		DomainId:     viper.GetUint32("DOMAIN_ID"),
		LookbackBlks: viper.GetUint64("LOOKBACK_BLOCKS"),
		// attestation side
		AttestationUrl:     viper.GetString("ATTESTATION_URL"),
		AttestationTimeout: viper.GetInt64("ATTESTATION_TIMEOUT_SECONDS"),
		// state side
		DbFilePath: viper.GetString("DB_FILE_PATH"),
		// Http side
		HttpIp:   httpIp,
		HttpPort: httpPort,
	}
}
