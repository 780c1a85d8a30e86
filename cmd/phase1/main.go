// Command phase1 drives the powers-of-tau accumulator through the ceremony
// state machine: new, contribute, beacon, verify-and-transform, split,
// combine, the phase-2 Lagrange conversion, and auditing against external
// .ptau exports.
package main

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"

	gp "github.com/mdehoog/gnark-ptau"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	powersoftau "github.com/giuliop/powersoftau"
	"github.com/giuliop/powersoftau/phase1"
	"github.com/giuliop/powersoftau/transcript"
)

var (
	flagCurve      string
	flagSystem     string
	flagBatchSize  int
	flagPower      int
	flagMode       string
	flagChunkSize  int
	flagChunkIndex int
	flagSeed       string
)

func buildCeremony(log zerolog.Logger) (*phase1.Ceremony, error) {
	curveKind, err := powersoftau.ParseCurve(flagCurve)
	if err != nil {
		return nil, err
	}
	system, err := powersoftau.ParseSystem(flagSystem)
	if err != nil {
		return nil, err
	}
	mode, err := powersoftau.ParseMode(flagMode)
	if err != nil {
		return nil, err
	}
	cfg := powersoftau.Config{
		Curve:      curveKind,
		System:     system,
		Power:      flagPower,
		BatchSize:  flagBatchSize,
		Mode:       mode,
		ChunkSize:  flagChunkSize,
		ChunkIndex: flagChunkIndex,
	}
	return phase1.New(cfg, log)
}

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	root := &cobra.Command{
		Use:           "phase1",
		Short:         "powers-of-tau ceremony, phase 1",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flagCurve, "curve-kind", "bls12_381", "curve: bls12_381, bls12_377, bw6, bn254")
	pf.StringVar(&flagSystem, "proving-system", "groth16", "proving system: groth16, marlin, plonk")
	pf.IntVar(&flagBatchSize, "batch-size", powersoftau.DefaultBatchSize, "points per streaming window")
	pf.IntVar(&flagPower, "power", 0, "sequences cover powers of tau up to 2^power")
	pf.StringVar(&flagMode, "contribution-mode", "full", "full or chunked")
	pf.IntVar(&flagChunkSize, "chunk-size", 0, "chunk size in chunked mode")
	pf.IntVar(&flagChunkIndex, "chunk-index", 0, "chunk index in chunked mode")
	pf.StringVar(&flagSeed, "seed", "", "hex seed file for deterministic contributions")

	var challengeFname, challengeHashFname string
	var responseFname, responseHashFname string
	var newChallengeFname, newChallengeHashFname string

	newCmd := &cobra.Command{
		Use:   "new",
		Short: "write the identity accumulator",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildCeremony(log)
			if err != nil {
				return err
			}
			if err := c.Initialize(challengeFname); err != nil {
				return err
			}
			return phase1.WriteHashSidecar(challengeHashFname, challengeFname)
		},
	}
	newCmd.Flags().StringVar(&challengeFname, "challenge-fname", "challenge", "output challenge file")
	newCmd.Flags().StringVar(&challengeHashFname, "challenge-hash-fname", "", "optional hash sidecar")

	contributeCmd := &cobra.Command{
		Use:   "contribute",
		Short: "fold fresh secrets into a challenge",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildCeremony(log)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stderr, "press enter once your entropy sources are ready")
			if _, err := bufio.NewReader(os.Stdin).ReadString('\n'); err != nil {
				return fmt.Errorf("reading acknowledgment: %w", err)
			}
			ent, err := transcript.NewEntropy(flagSeed)
			if err != nil {
				return err
			}
			if err := c.Contribute(challengeFname, responseFname, ent); err != nil {
				return err
			}
			if err := phase1.WriteHashSidecar(challengeHashFname, challengeFname); err != nil {
				return err
			}
			return phase1.WriteHashSidecar(responseHashFname, responseFname)
		},
	}
	contributeCmd.Flags().StringVar(&challengeFname, "challenge-fname", "challenge", "input challenge file")
	contributeCmd.Flags().StringVar(&responseFname, "response-fname", "response", "output response file")
	contributeCmd.Flags().StringVar(&challengeHashFname, "challenge-hash-fname", "", "optional hash sidecar")
	contributeCmd.Flags().StringVar(&responseHashFname, "response-hash-fname", "", "optional hash sidecar")

	var beaconHash string
	var beaconIterations uint64
	beaconCmd := &cobra.Command{
		Use:   "beacon",
		Short: "contribute with scalars derived from a public beacon",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildCeremony(log)
			if err != nil {
				return err
			}
			if err := c.Beacon(challengeFname, responseFname, beaconHash, beaconIterations); err != nil {
				return err
			}
			return phase1.WriteHashSidecar(responseHashFname, responseFname)
		},
	}
	beaconCmd.Flags().StringVar(&challengeFname, "challenge-fname", "challenge", "input challenge file")
	beaconCmd.Flags().StringVar(&responseFname, "response-fname", "response", "output response file")
	beaconCmd.Flags().StringVar(&beaconHash, "beacon-hash", "", "32-byte hex beacon string")
	beaconCmd.Flags().Uint64Var(&beaconIterations, "beacon-iterations", 1<<10, "delay-hash iterations")
	beaconCmd.Flags().StringVar(&responseHashFname, "response-hash-fname", "", "optional hash sidecar")

	verifyCmd := &cobra.Command{
		Use:   "verify-and-transform-pok-and-correctness",
		Short: "verify a response and promote it to the next challenge",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildCeremony(log)
			if err != nil {
				return err
			}
			if err := c.VerifyTransform(challengeFname, responseFname, newChallengeFname); err != nil {
				return err
			}
			return phase1.WriteHashSidecar(newChallengeHashFname, newChallengeFname)
		},
	}
	verifyCmd.Flags().StringVar(&challengeFname, "challenge-fname", "challenge", "input challenge file")
	verifyCmd.Flags().StringVar(&responseFname, "response-fname", "response", "input response file")
	verifyCmd.Flags().StringVar(&newChallengeFname, "new-challenge-fname", "new_challenge", "output challenge file")
	verifyCmd.Flags().StringVar(&newChallengeHashFname, "new-challenge-hash-fname", "", "optional hash sidecar")

	ratiosCmd := &cobra.Command{
		Use:   "verify-and-transform-ratios",
		Short: "final ratio-invariant check over a transcript",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildCeremony(log)
			if err != nil {
				return err
			}
			return c.VerifyRatios(responseFname)
		},
	}
	ratiosCmd.Flags().StringVar(&responseFname, "response-fname", "response", "transcript to check")

	var responseListFname, combinedFname string
	combineCmd := &cobra.Command{
		Use:   "combine",
		Short: "combine chunk files into a full-form transcript",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildCeremony(log)
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(responseListFname)
			if err != nil {
				return fmt.Errorf("reading chunk list: %w", err)
			}
			var paths []string
			for _, line := range strings.Split(string(raw), "\n") {
				if line = strings.TrimSpace(line); line != "" {
					paths = append(paths, line)
				}
			}
			return c.Combine(paths, combinedFname)
		},
	}
	combineCmd.Flags().StringVar(&responseListFname, "response-list-fname", "", "file listing chunk responses, one per line")
	combineCmd.Flags().StringVar(&combinedFname, "combined-fname", "combined", "output full-form file")

	var fullFname, chunkFnamePrefix string
	splitCmd := &cobra.Command{
		Use:   "split",
		Short: "split a full-form transcript into chunk files",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildCeremony(log)
			if err != nil {
				return err
			}
			_, err = c.Split(fullFname, chunkFnamePrefix)
			return err
		},
	}
	splitCmd.Flags().StringVar(&fullFname, "full-fname", "", "input full-form file")
	splitCmd.Flags().StringVar(&chunkFnamePrefix, "chunk-fname-prefix", "chunk", "output prefix; emits prefix_0, prefix_1, ...")

	var radixFname string
	prepareCmd := &cobra.Command{
		Use:   "prepare-phase2",
		Short: "convert a finalized transcript into the phase-2 radix file",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildCeremony(log)
			if err != nil {
				return err
			}
			return c.PrepareRadix(challengeFname, radixFname)
		},
	}
	prepareCmd.Flags().StringVar(&challengeFname, "challenge-fname", "challenge", "finalized challenge file")
	prepareCmd.Flags().StringVar(&radixFname, "radix-fname", "radix", "output radix file")

	var ptauFname string
	auditCmd := &cobra.Command{
		Use:   "audit-ptau",
		Short: "cross-check a BN254 transcript against a snarkjs .ptau export",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildCeremony(log)
			if err != nil {
				return err
			}
			return auditPtau(c, ptauFname, challengeFname)
		},
	}
	auditCmd.Flags().StringVar(&ptauFname, "ptau-fname", "", "snarkjs .ptau file")
	auditCmd.Flags().StringVar(&challengeFname, "challenge-fname", "challenge", "finalized challenge file")

	root.AddCommand(newCmd, contributeCmd, beaconCmd, verifyCmd, ratiosCmd,
		combineCmd, splitCmd, prepareCmd, auditCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "phase1: %v\n", err)
		os.Exit(powersoftau.ExitCode(err))
	}
}

// auditPtau compares the tau powers of a finalized BN254 transcript against
// the SRS recovered from an externally published .ptau file.
func auditPtau(c *phase1.Ceremony, ptauPath, challengePath string) error {
	f, err := os.Open(ptauPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", ptauPath, err)
	}
	defer f.Close()
	srs, err := gp.ToSRS(f)
	if err != nil {
		return fmt.Errorf("%w: converting %s: %v", powersoftau.ErrFormat, ptauPath, err)
	}

	cfg := c.Config()
	if cfg.Curve != powersoftau.BN254 {
		return fmt.Errorf("%w: ptau audit is BN254 only", powersoftau.ErrConfig)
	}
	count := len(srs.Pk.G1)
	if max := 1 << cfg.Power; count > max {
		count = max
	}
	ours, err := c.PowersG1(challengePath, count)
	if err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		b := srs.Pk.G1[i].Bytes()
		if !bytes.Equal(b[:], ours[i]) {
			return fmt.Errorf("%w: tau_g1[%d] disagrees with %s",
				powersoftau.ErrRatioInvalid, i, ptauPath)
		}
	}
	oursG2, err := c.PowersG2(challengePath, 2)
	if err != nil {
		return err
	}
	for i := 0; i < 2; i++ {
		b := srs.Vk.G2[i].Bytes()
		if !bytes.Equal(b[:], oursG2[i]) {
			return fmt.Errorf("%w: tau_g2[%d] disagrees with %s",
				powersoftau.ErrRatioInvalid, i, ptauPath)
		}
	}
	fmt.Printf("audit successful: %d G1 powers match\n", count)
	return nil
}
