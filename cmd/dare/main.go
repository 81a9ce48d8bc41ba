// Command dare fits a machine-unlearning decision forest from a CSV
// file, optionally removes a batch of training rows by id, and reports
// predictions and removal telemetry. It is a thin demo CLI, merged and
// generalized from wlattner/rf's two near-duplicate entry points
// (main.go, rf.go) and its model.go report helpers, the way a single
// cleaned-up CLI would look once their overlap was resolved.
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/gob"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/wlattner/dare/data"
	"github.com/wlattner/dare/forest"
	"github.com/wlattner/dare/tree"
)

func main() {
	trainPath := flag.String("train", "", "path to a training CSV; first column is the 0/1 label, remaining columns are 0/1 features")
	removeIDs := flag.String("remove", "", "comma-separated row ids to remove after fitting")
	numTrees := flag.Int("num_trees", 1, "number of trees; 1 builds a single tree.Tree, >1 builds a forest.Forest")
	numWorkers := flag.Int("num_workers", 1, "worker goroutines when num_trees > 1")
	maxFeatures := flag.Int("max_features", 0, "candidate feature subset size per tree root when num_trees > 1; 0 means round(sqrt(nFeatures))")
	maxDepth := flag.Int("max_depth", -1, "max tree depth; -1 for unbounded")
	minSamplesSplit := flag.Int("min_samples_split", 2, "min sample_count for a node to be split")
	minSamplesLeaf := flag.Int("min_samples_leaf", 1, "min sample_count required on each side of a split")
	lambda := flag.Float64("lambda", 1.0, "Gibbs noise temperature for the randomized splitter")
	seed := flag.Int64("seed", 1, "RNG seed")
	varImp := flag.Bool("var_importance", false, "print variable importance after fitting (single-tree mode only)")
	modelPath := flag.String("model", "", "path to save the fitted model to after fitting, or to load from when -predict_only is set")
	predictOnly := flag.Bool("predict_only", false, "skip fitting; load -model and report predictions for -train's data")

	flag.Parse()

	if *trainPath == "" {
		fatal("missing -train")
	}

	X, y, err := readCSV(*trainPath)
	if err != nil {
		fatal(err.Error())
	}

	if *predictOnly {
		if *modelPath == "" {
			fatal("missing -model for -predict_only")
		}
		runPredictOnly(X, y, *modelPath)
		return
	}

	if *numTrees <= 1 {
		runTree(X, y, *maxDepth, *minSamplesSplit, *minSamplesLeaf, *lambda, *seed, *removeIDs, *varImp, *modelPath)
		return
	}

	runForest(X, y, *numTrees, *numWorkers, *maxFeatures, *maxDepth, *minSamplesSplit, *minSamplesLeaf, *lambda, *seed, *removeIDs, *modelPath)
}

func runTree(X data.Matrix, y data.Labels, maxDepth, minSamplesSplit, minSamplesLeaf int, lambda float64, seed int64, removeIDs string, varImp bool, modelPath string) {
	params, err := tree.NewParams(
		tree.MaxDepth(maxDepth),
		tree.MinSamplesSplit(minSamplesSplit),
		tree.MinSamplesLeaf(minSamplesLeaf),
		tree.Lambda(lambda),
		tree.Seed(seed),
	)
	if err != nil {
		fatal(err.Error())
	}

	t, err := tree.Build(X, y, params)
	if err != nil {
		fatal(err.Error())
	}

	reportPredictions(t.Predict(X), y)

	if varImp {
		reportVarImp(t.VarImp(len(X[0])))
	}

	if removeIDs != "" {
		ids, err := parseIDs(removeIDs)
		if err != nil {
			fatal(err.Error())
		}

		mgr := data.NewManager(X, y)
		report, err := t.Remove(mgr, ids)
		if err != nil {
			fatal(err.Error())
		}

		reportRemoval(report.NRetrains, report.NLeafUpdates, report.NSamplesRetrained, report.RetrainDepths)
		reportPredictions(t.Predict(X), y)
	}

	if modelPath != "" {
		if err := saveTreeModel(modelPath, t); err != nil {
			fatal(err.Error())
		}
	}
}

func runForest(X data.Matrix, y data.Labels, numTrees, numWorkers, maxFeatures, maxDepth, minSamplesSplit, minSamplesLeaf int, lambda float64, seed int64, removeIDs, modelPath string) {
	params, err := forest.NewParams(
		forest.NumTrees(numTrees),
		forest.NumWorkers(numWorkers),
		forest.MaxFeatures(maxFeatures),
		forest.MaxDepth(maxDepth),
		forest.MinSamplesSplit(minSamplesSplit),
		forest.MinSamplesLeaf(minSamplesLeaf),
		forest.Lambda(lambda),
		forest.Seed(seed),
	)
	if err != nil {
		fatal(err.Error())
	}

	f, err := forest.Fit(X, y, params)
	if err != nil {
		fatal(err.Error())
	}

	reportPredictions(f.Predict(X), y)

	if removeIDs != "" {
		ids, err := parseIDs(removeIDs)
		if err != nil {
			fatal(err.Error())
		}

		report, err := f.Remove(ids)
		if err != nil {
			fatal(err.Error())
		}

		reportRemoval(report.NRetrains, report.NLeafUpdates, report.NSamplesRetrained, nil)
		reportPredictions(f.Predict(X), y)
	}

	if modelPath != "" {
		if err := saveForestModel(modelPath, f); err != nil {
			fatal(err.Error())
		}
	}
}

// modelFile is the on-disk envelope written by saveTreeModel/saveForestModel
// and read by loadModel: Kind tells runPredictOnly which of tree.Load or
// forest.Load to hand Blob to.
type modelFile struct {
	Kind string // "tree" or "forest"
	Blob []byte
}

func saveTreeModel(path string, t *tree.Tree) error {
	var blob bytes.Buffer
	if err := t.Save(&blob); err != nil {
		return err
	}
	return writeModelFile(path, modelFile{Kind: "tree", Blob: blob.Bytes()})
}

func saveForestModel(path string, f *forest.Forest) error {
	var blob bytes.Buffer
	if err := f.Save(&blob); err != nil {
		return err
	}
	return writeModelFile(path, modelFile{Kind: "forest", Blob: blob.Bytes()})
}

func writeModelFile(path string, mf modelFile) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	if err := gob.NewEncoder(out).Encode(&mf); err != nil {
		return err
	}
	return nil
}

func loadModel(path string) (modelFile, error) {
	in, err := os.Open(path)
	if err != nil {
		return modelFile{}, err
	}
	defer in.Close()

	var mf modelFile
	if err := gob.NewDecoder(in).Decode(&mf); err != nil {
		return modelFile{}, err
	}
	return mf, nil
}

// runPredictOnly loads a previously saved tree or forest model and reports
// its accuracy against X, y without fitting anything.
func runPredictOnly(X data.Matrix, y data.Labels, modelPath string) {
	mf, err := loadModel(modelPath)
	if err != nil {
		fatal(err.Error())
	}

	switch mf.Kind {
	case "tree":
		t, err := tree.Load(bytes.NewReader(mf.Blob))
		if err != nil {
			fatal(err.Error())
		}
		reportPredictions(t.Predict(X), y)
	case "forest":
		f, err := forest.Load(bytes.NewReader(mf.Blob))
		if err != nil {
			fatal(err.Error())
		}
		reportPredictions(f.Predict(X), y)
	default:
		fatal(fmt.Sprintf("unrecognized model kind %q in %s", mf.Kind, modelPath))
	}
}

func reportPredictions(probs []float64, y data.Labels) {
	var correct int
	for i, p := range probs {
		pred := uint8(0)
		if p >= 0.5 {
			pred = 1
		}
		if pred == y[i] {
			correct++
		}
	}
	fmt.Printf("accuracy: %.4f (%d/%d)\n", float64(correct)/float64(len(y)), correct, len(y))
}

func reportVarImp(imp []float64) {
	fmt.Println("variable importance:")
	for f, v := range imp {
		fmt.Printf("  feature %d: %.4f\n", f, v)
	}
}

func reportRemoval(nRetrains, nLeafUpdates, nSamplesRetrained int, retrainDepths []int) {
	fmt.Printf("removal: retrains=%d leaf_updates=%d samples_retrained=%d", nRetrains, nLeafUpdates, nSamplesRetrained)
	if len(retrainDepths) > 0 {
		fmt.Printf(" retrain_depths=%v", retrainDepths)
	}
	fmt.Println()
}

func parseIDs(s string) ([]int, error) {
	fields := strings.Split(s, ",")
	ids := make([]int, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		id, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("invalid -remove id %q: %v", f, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// readCSV parses a training file where the first column is a 0/1 label
// and every remaining column is a 0/1 feature. A header row is
// tolerated and skipped if its first cell fails to parse as a number.
func readCSV(path string) (data.Matrix, data.Labels, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	var X data.Matrix
	var y data.Labels

	first := true
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}

		if first {
			first = false
			if _, err := strconv.Atoi(strings.TrimSpace(row[0])); err != nil {
				continue // header row
			}
		}

		label, err := strconv.Atoi(strings.TrimSpace(row[0]))
		if err != nil {
			return nil, nil, fmt.Errorf("invalid label %q: %v", row[0], err)
		}

		features := make([]uint8, len(row)-1)
		for i, cell := range row[1:] {
			v, err := strconv.Atoi(strings.TrimSpace(cell))
			if err != nil {
				return nil, nil, fmt.Errorf("invalid feature value %q: %v", cell, err)
			}
			features[i] = uint8(v)
		}

		X = append(X, features)
		y = append(y, uint8(label))
	}

	return X, y, nil
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, "dare:", msg)
	os.Exit(1)
}
