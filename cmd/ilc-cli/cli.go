// Copyright 2026 the ilcbus authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/grid-x/serial"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mirrortel/ilcbus"
)

var (
	cfgFile string
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ilc-cli",
	Short: "ILC bus frame tooling",
	Long:  "Builds, inspects and replays framed ILC bus requests without an FPGA in the loop.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = initLogger()
		if err != nil {
			return fmt.Errorf("could not initialize logger: %w", err)
		}
		return initConfig()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var frameCmd = &cobra.Command{
	Use:   "frame",
	Short: "Build a request frame",
	Long:  "Builds a framed request and prints its FIFO words, one per line.",
	RunE: func(cmd *cobra.Command, args []string) error {
		address, _ := cmd.Flags().GetUint8("address")
		function, _ := cmd.Flags().GetUint8("function")
		timeout, _ := cmd.Flags().GetUint32("timeout")
		params, _ := cmd.Flags().GetStringArray("arg")

		words, err := buildFrame(address, function, timeout, params)
		if err != nil {
			return err
		}
		for _, w := range words {
			fmt.Printf("0x%04X\n", w)
		}
		return nil
	},
}

var decodeCmd = &cobra.Command{
	Use:   "decode WORD...",
	Short: "Decode a response frame",
	Long:  "Feeds response FIFO words through the dispatch engine and prints the parsed events.",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		words := make([]uint16, 0, len(args))
		for _, a := range args {
			v, err := strconv.ParseUint(strings.TrimPrefix(a, "0x"), 16, 16)
			if err != nil {
				return fmt.Errorf("invalid FIFO word %q: %w", a, err)
			}
			words = append(words, uint16(v))
		}
		return decodeWords(words)
	},
}

var crcCmd = &cobra.Command{
	Use:   "crc BYTES",
	Short: "Modbus CRC-16 of a hex byte string",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := hex.DecodeString(strings.ReplaceAll(args[0], " ", ""))
		if err != nil {
			return fmt.Errorf("invalid hex input: %w", err)
		}
		var crc ilcbus.CRC
		crc.Reset().AddBytes(data)
		fmt.Printf("0x%04X\n", crc.Value())
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Replay a frame's payload bytes over a serial port",
	Long: "Builds a request and writes its payload byte stream to an RS-485 port, " +
		"bypassing the FPGA for bench bring-up.",
	RunE: func(cmd *cobra.Command, args []string) error {
		address, _ := cmd.Flags().GetUint8("address")
		function, _ := cmd.Flags().GetUint8("function")
		timeout, _ := cmd.Flags().GetUint32("timeout")
		params, _ := cmd.Flags().GetStringArray("arg")
		if port, _ := cmd.Flags().GetString("port"); port != "" {
			viper.Set("serial.port", port)
		}

		words, err := buildFrame(address, function, timeout, params)
		if err != nil {
			return err
		}

		framing := ilcbus.ILCFraming{}
		payload := make([]byte, 0, len(words))
		for _, w := range words {
			if w&ilcbus.FIFOCmdMask == ilcbus.FIFOWrite {
				payload = append(payload, framing.DecodeByte(w))
			}
		}

		port, err := serial.Open(&serial.Config{
			Address:  viper.GetString("serial.port"),
			BaudRate: viper.GetInt("serial.baudrate"),
			DataBits: viper.GetInt("serial.databits"),
			Parity:   viper.GetString("serial.parity"),
			StopBits: viper.GetInt("serial.stopbits"),
			Timeout:  viper.GetDuration("serial.timeout"),
		})
		if err != nil {
			return fmt.Errorf("could not open %s: %w", viper.GetString("serial.port"), err)
		}
		defer port.Close()

		n, err := port.Write(payload)
		if err != nil {
			return fmt.Errorf("write failed: %w", err)
		}
		logger.Info("frame sent",
			zap.String("port", viper.GetString("serial.port")),
			zap.Uint8("address", address),
			zap.Uint8("function", function),
			zap.Int("bytes", n),
		)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ilc-cli version %s\n", Version)
		fmt.Printf("  Build: %s\n", BuildTime)
		fmt.Printf("  Commit: %s\n", GitCommit)
	},
}

func buildFrame(address, function uint8, timeout uint32, args []string) ([]uint16, error) {
	params := make([]interface{}, 0, len(args))
	for _, a := range args {
		p, err := parseArg(a)
		if err != nil {
			return nil, err
		}
		params = append(params, p)
	}

	buf := ilcbus.NewBuffer(ilcbus.ILCFraming{})
	if err := buf.CallFunction(address, function, timeout, params...); err != nil {
		return nil, err
	}
	return buf.Words(), nil
}

// parseArg converts a "type:value" argument into a typed frame
// parameter.
func parseArg(arg string) (interface{}, error) {
	typ, value, ok := strings.Cut(arg, ":")
	if !ok {
		return nil, fmt.Errorf("argument %q is not in type:value form", arg)
	}
	switch typ {
	case "u8":
		v, err := strconv.ParseUint(value, 0, 8)
		if err != nil {
			return nil, err
		}
		return uint8(v), nil
	case "i8":
		v, err := strconv.ParseInt(value, 0, 8)
		if err != nil {
			return nil, err
		}
		return int8(v), nil
	case "u16":
		v, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return nil, err
		}
		return uint16(v), nil
	case "i16":
		v, err := strconv.ParseInt(value, 0, 16)
		if err != nil {
			return nil, err
		}
		return int16(v), nil
	case "u32":
		v, err := strconv.ParseUint(value, 0, 32)
		if err != nil {
			return nil, err
		}
		return uint32(v), nil
	case "i32":
		v, err := strconv.ParseInt(value, 0, 32)
		if err != nil {
			return nil, err
		}
		return int32(v), nil
	case "u64":
		v, err := strconv.ParseUint(value, 0, 64)
		if err != nil {
			return nil, err
		}
		return v, nil
	case "f32":
		v, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return nil, err
		}
		return float32(v), nil
	case "str":
		return []byte(value), nil
	case "hex":
		return hex.DecodeString(value)
	default:
		return nil, fmt.Errorf("unknown parameter type %q", typ)
	}
}

func decodeWords(words []uint16) error {
	framing := ilcbus.ILCFraming{}
	address := framing.DecodeByte(words[0])
	function := framing.DecodeByte(words[1])

	em := ilcbus.NewElectromechanicalPneumaticILC(1)
	em.SetLogger(logger)
	em.SetAlwaysTrigger(true)

	em.OnServerID = func(address uint8, id ilcbus.ServerID) {
		fmt.Printf("server ID %d: uid=0x%012X app=%d node=%d opts=%d/%d rev=%d.%d fw=%q\n",
			address, id.UniqueID, id.ILCAppType, id.NetworkNodeType,
			id.SelectedOptions, id.NetworkNodeOptions, id.MajorRev, id.MinorRev, id.FirmwareName)
	}
	em.OnServerStatus = func(address uint8, mode ilcbus.Mode, status, faults uint16) {
		fmt.Printf("server status %d: mode=%s status=0x%04X faults=0x%04X\n", address, mode, status, faults)
	}
	em.OnChangeILCMode = func(address uint8, mode ilcbus.Mode) {
		fmt.Printf("mode changed %d: %s\n", address, mode)
	}
	em.OnSetTempILCAddress = func(address, newAddress uint8) {
		fmt.Printf("temporary address %d: new=%d\n", address, newAddress)
	}
	em.OnResetServer = func(address uint8) {
		fmt.Printf("server reset %d\n", address)
	}
	em.OnHardpointForceStatus = func(address, status uint8, encoderPosition int32, loadCellForce float32) {
		fmt.Printf("hardpoint %d: status=0x%02X encoder=%d force=%f\n", address, status, encoderPosition, loadCellForce)
	}
	em.OnCalibrationData = func(address uint8, data ilcbus.CalibrationData) {
		fmt.Printf("calibration %d: %+v\n", address, data)
	}
	em.OnMezzaninePressure = func(address uint8, primaryPush, primaryPull, secondaryPush, secondaryPull float32) {
		fmt.Printf("pressure %d: %f %f %f %f\n", address, primaryPush, primaryPull, secondaryPush, secondaryPull)
	}

	// Seed the ledger so the frame pairs up; error responses alias the
	// request function in the low 7 bits.
	em.PushCommanded(address, function&0x7F)
	if err := em.ProcessResponse(words); err != nil {
		return err
	}
	return em.CheckCommandedEmpty()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")

	for _, cmd := range []*cobra.Command{frameCmd, sendCmd} {
		cmd.Flags().Uint8P("address", "a", 0, "unit address")
		cmd.Flags().Uint8P("function", "f", ilcbus.FuncReportServerStatus, "function code")
		cmd.Flags().Uint32P("timeout", "t", 335, "rx timeout in microseconds")
		cmd.Flags().StringArray("arg", nil, "typed parameter, type:value (u8, i8, u16, i16, u32, i32, u64, f32, str, hex)")
	}
	sendCmd.Flags().StringP("port", "p", "", "serial port (overrides config)")

	rootCmd.AddCommand(frameCmd, decodeCmd, crcCmd, sendCmd, versionCmd)
}

func initLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("ilc-cli")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.ilc-cli")
		viper.AddConfigPath("/etc/ilc-cli/")
	}

	viper.SetDefault("serial.port", "/dev/ttyUSB0")
	viper.SetDefault("serial.baudrate", 921600)
	viper.SetDefault("serial.databits", 8)
	viper.SetDefault("serial.parity", "N")
	viper.SetDefault("serial.stopbits", 1)
	viper.SetDefault("serial.timeout", 5*time.Second)

	viper.SetEnvPrefix("ILCCLI")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("could not read config: %w", err)
		}
	}
	return nil
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}
