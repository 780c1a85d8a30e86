// Command phase2 runs the Groth16 circuit specialization over BN254:
// building parameters from an R1CS and a phase-1 radix file, applying and
// verifying delta contributions, and exporting the final keys.
package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	powersoftau "github.com/giuliop/powersoftau"
	"github.com/giuliop/powersoftau/phase2"
	"github.com/giuliop/powersoftau/transcript"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	var (
		flagPower int
		flagSeed  string
	)
	root := &cobra.Command{
		Use:           "phase2",
		Short:         "powers-of-tau ceremony, phase 2 (Groth16, BN254)",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().IntVar(&flagPower, "power", 0, "phase-1 power the radix file was built at")
	root.PersistentFlags().StringVar(&flagSeed, "seed", "", "hex seed file for deterministic contributions")

	var circuitFname, radixFname, paramsFname string
	newCmd := &cobra.Command{
		Use:   "new",
		Short: "build ceremony-start parameters for a circuit",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := phase2.New(circuitFname, radixFname, flagPower, log)
			if err != nil {
				return err
			}
			return p.WriteFile(paramsFname)
		},
	}
	newCmd.Flags().StringVar(&circuitFname, "circuit-fname", "circuit.r1cs", "gnark BN254 R1CS file")
	newCmd.Flags().StringVar(&radixFname, "radix-fname", "radix", "phase-1 radix file")
	newCmd.Flags().StringVar(&paramsFname, "params-fname", "params_0", "output parameter file")

	var inFname, outFname string
	contributeCmd := &cobra.Command{
		Use:   "contribute",
		Short: "apply one delta contribution",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(os.Stderr, "press enter once your entropy sources are ready")
			if _, err := bufio.NewReader(os.Stdin).ReadString('\n'); err != nil {
				return fmt.Errorf("reading acknowledgment: %w", err)
			}
			ent, err := transcript.NewEntropy(flagSeed)
			if err != nil {
				return err
			}
			return phase2.Contribute(inFname, outFname, ent, log)
		},
	}
	contributeCmd.Flags().StringVar(&inFname, "in-fname", "", "input parameter file")
	contributeCmd.Flags().StringVar(&outFname, "out-fname", "", "output parameter file")

	var prevFname, nextFname string
	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "verify one contribution step",
		RunE: func(cmd *cobra.Command, args []string) error {
			return phase2.Verify(prevFname, nextFname, log)
		},
	}
	verifyCmd.Flags().StringVar(&prevFname, "prev-fname", "", "parameter file before the contribution")
	verifyCmd.Flags().StringVar(&nextFname, "next-fname", "", "parameter file after the contribution")

	var pkFname, vkFname string
	exportCmd := &cobra.Command{
		Use:   "export-keys",
		Short: "export proving and verifying keys from finalized parameters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return phase2.ExportKeys(paramsFname, pkFname, vkFname, log)
		},
	}
	exportCmd.Flags().StringVar(&paramsFname, "params-fname", "", "finalized parameter file")
	exportCmd.Flags().StringVar(&pkFname, "pk-fname", "pk.bin", "output proving key")
	exportCmd.Flags().StringVar(&vkFname, "vk-fname", "vk.bin", "output verifying key")

	root.AddCommand(newCmd, contributeCmd, verifyCmd, exportCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "phase2: %v\n", err)
		os.Exit(powersoftau.ExitCode(err))
	}
}
