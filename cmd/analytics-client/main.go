// Command analytics-client is the data-owner side of the service: it
// generates and registers keys, encrypts CSV rows locally, submits
// aggregate and prediction requests, and decrypts results. The secret key
// never leaves the key file on disk.
package main

import (
	"bytes"
	"encoding/base64"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"he-analytics/internal/inference"
	"he-analytics/internal/scheme"
)

type keyFile struct {
	KeyID              string   `json:"key_id"`
	PublicKey          string   `json:"public_key"`
	SecretKey          string   `json:"secret_key"`
	RelinearizationKey string   `json:"relinearization_key"`
	GaloisKeys         []string `json:"galois_keys"`
}

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		usage()
	}

	sc, err := scheme.NewContext()
	if err != nil {
		log.Fatalf("scheme context: %v", err)
	}

	switch os.Args[1] {
	case "keygen":
		cmdKeygen(sc, os.Args[2:])
	case "register":
		cmdRegister(os.Args[2:])
	case "aggregate":
		cmdAggregate(sc, os.Args[2:])
	case "predict":
		cmdPredict(sc, os.Args[2:])
	default:
		usage()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: analytics-client <command> [flags]

commands:
  keygen     generate a key pair and evaluation keys
  register   register the public and evaluation keys with the server
  aggregate  encrypt a CSV file and request a column aggregate
  predict    encrypt a feature vector and request a model prediction`)
	os.Exit(2)
}

func cmdKeygen(sc *scheme.Context, args []string) {
	fs := flag.NewFlagSet("keygen", flag.ExitOnError)
	out := fs.String("out", "keys.json", "output key file")
	fs.Parse(args)

	log.Printf("generating CKKS key pair (this can take a moment)...")
	kp, err := sc.GenKeyPair()
	if err != nil {
		log.Fatalf("keygen: %v", err)
	}

	pkBytes, err := kp.Public.Bytes()
	if err != nil {
		log.Fatalf("marshal public key: %v", err)
	}
	skBytes, err := kp.Secret.Bytes()
	if err != nil {
		log.Fatalf("marshal secret key: %v", err)
	}
	rlkBytes, err := kp.Evaluation.RelinearizationKeyBytes()
	if err != nil {
		log.Fatalf("marshal relinearization key: %v", err)
	}
	gkBytes, err := kp.Evaluation.GaloisKeyBytes()
	if err != nil {
		log.Fatalf("marshal galois keys: %v", err)
	}

	kf := keyFile{
		KeyID:              kp.Public.ID(),
		PublicKey:          base64.StdEncoding.EncodeToString(pkBytes),
		SecretKey:          base64.StdEncoding.EncodeToString(skBytes),
		RelinearizationKey: base64.StdEncoding.EncodeToString(rlkBytes),
	}
	for _, gk := range gkBytes {
		kf.GaloisKeys = append(kf.GaloisKeys, base64.StdEncoding.EncodeToString(gk))
	}

	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		log.Fatalf("marshal key file: %v", err)
	}
	if err := os.WriteFile(*out, data, 0o600); err != nil {
		log.Fatalf("write key file: %v", err)
	}
	log.Printf("wrote %s (key %.8s). Keep the secret key local.", *out, kf.KeyID)
}

func cmdRegister(args []string) {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	keys := fs.String("keys", "keys.json", "key file")
	server := fs.String("server", "http://localhost:8080", "server base URL")
	fs.Parse(args)

	kf := loadKeys(*keys)
	var resp struct {
		KeyID string `json:"key_id"`
	}
	postJSON(*server+"/api/keys", map[string]any{
		"public_key":          kf.PublicKey,
		"relinearization_key": kf.RelinearizationKey,
		"galois_keys":         kf.GaloisKeys,
	}, &resp)
	log.Printf("registered key %.8s", resp.KeyID)
}

func cmdAggregate(sc *scheme.Context, args []string) {
	fs := flag.NewFlagSet("aggregate", flag.ExitOnError)
	keys := fs.String("keys", "keys.json", "key file")
	server := fs.String("server", "http://localhost:8080", "server base URL")
	csvPath := fs.String("csv", "", "CSV file with a header row")
	op := fs.String("op", "average", "operation: sum, average, variance or count")
	column := fs.String("column", "", "column name to aggregate (default: first column)")
	fs.Parse(args)

	if *csvPath == "" {
		log.Fatal("aggregate: -csv is required")
	}
	kf := loadKeys(*keys)
	pub := publicKey(kf)
	columns, rows := readCSV(*csvPath)

	encrypted := make([]string, len(rows))
	for i, row := range rows {
		ct, err := sc.Encrypt(pub, row)
		if err != nil {
			log.Fatalf("encrypt row %d: %v", i, err)
		}
		data, err := ct.Bytes()
		if err != nil {
			log.Fatalf("marshal row %d: %v", i, err)
		}
		encrypted[i] = base64.StdEncoding.EncodeToString(data)
	}
	log.Printf("encrypted %d rows x %d columns", len(rows), len(columns))

	reqBody := map[string]any{
		"key_id":         kf.KeyID,
		"encrypted_rows": encrypted,
		"column_names":   columns,
	}
	if *column != "" {
		reqBody["column_name"] = *column
	}
	var resp struct {
		Operation       string `json:"operation"`
		EncryptedResult string `json:"encrypted_result"`
		ColumnName      string `json:"column_name"`
		RowCount        int    `json:"row_count"`
	}
	postJSON(*server+"/api/compute/"+*op, reqBody, &resp)

	value := decryptScalar(sc, kf, resp.EncryptedResult)
	if resp.ColumnName != "" {
		log.Printf("%s(%s) over %d rows = %.6f", resp.Operation, resp.ColumnName, resp.RowCount, value)
	} else {
		log.Printf("%s over %d rows = %.6f", resp.Operation, resp.RowCount, value)
	}
}

func cmdPredict(sc *scheme.Context, args []string) {
	fs := flag.NewFlagSet("predict", flag.ExitOnError)
	keys := fs.String("keys", "keys.json", "key file")
	server := fs.String("server", "http://localhost:8080", "server base URL")
	kind := fs.String("kind", "logistic", "model kind: logistic or linear")
	names := fs.String("names", "age,blood_pressure,cholesterol", "comma-separated feature names, in model order")
	features := fs.String("features", "", "comma-separated feature values")
	fs.Parse(args)

	if *features == "" {
		log.Fatal("predict: -features is required")
	}
	kf := loadKeys(*keys)
	pub := publicKey(kf)

	featureNames := strings.Split(*names, ",")
	values := make([]float64, 0, len(featureNames))
	for _, raw := range strings.Split(*features, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			log.Fatalf("predict: bad feature value %q: %v", raw, err)
		}
		values = append(values, v)
	}
	if len(values) != len(featureNames) {
		log.Fatalf("predict: %d values for %d feature names", len(values), len(featureNames))
	}

	ct, err := sc.Encrypt(pub, values)
	if err != nil {
		log.Fatalf("encrypt features: %v", err)
	}
	ctBytes, err := ct.Bytes()
	if err != nil {
		log.Fatalf("marshal features: %v", err)
	}

	var resp struct {
		ModelName           string `json:"model_name"`
		EncryptedPrediction string `json:"encrypted_prediction"`
		PostProcess         string `json:"post_process"`
	}
	postJSON(*server+"/api/model/predict/"+*kind, map[string]any{
		"key_id":             kf.KeyID,
		"encrypted_features": base64.StdEncoding.EncodeToString(ctBytes),
		"feature_names":      featureNames,
	}, &resp)

	score := decryptScalar(sc, kf, resp.EncryptedPrediction)
	if resp.PostProcess == inference.PostProcessSigmoid {
		log.Printf("%s: linear score %.6f, probability %.6f", resp.ModelName, score, inference.Sigmoid(score))
	} else {
		log.Printf("%s: prediction %.6f", resp.ModelName, score)
	}
}

func loadKeys(path string) keyFile {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("read key file: %v", err)
	}
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		log.Fatalf("parse key file %s: %v", path, err)
	}
	return kf
}

func publicKey(kf keyFile) *scheme.PublicKey {
	data, err := base64.StdEncoding.DecodeString(kf.PublicKey)
	if err != nil {
		log.Fatalf("decode public key: %v", err)
	}
	pub, err := scheme.PublicKeyFromBytes(data)
	if err != nil {
		log.Fatalf("parse public key: %v", err)
	}
	return pub
}

func decryptScalar(sc *scheme.Context, kf keyFile, b64 string) float64 {
	skData, err := base64.StdEncoding.DecodeString(kf.SecretKey)
	if err != nil {
		log.Fatalf("decode secret key: %v", err)
	}
	sec, err := scheme.SecretKeyFromBytes(skData, kf.KeyID)
	if err != nil {
		log.Fatalf("parse secret key: %v", err)
	}

	ctData, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		log.Fatalf("decode result: %v", err)
	}
	ct, err := sc.CiphertextFromBytes(ctData, kf.KeyID, 1)
	if err != nil {
		log.Fatalf("parse result: %v", err)
	}
	values, err := sc.Decrypt(sec, ct)
	if err != nil {
		log.Fatalf("decrypt result: %v", err)
	}
	return values[0]
}

func readCSV(path string) (columns []string, rows [][]float64) {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		log.Fatalf("read csv header: %v", err)
	}
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("read csv: %v", err)
		}
		row := make([]float64, len(record))
		for i, cell := range record {
			if row[i], err = strconv.ParseFloat(strings.TrimSpace(cell), 64); err != nil {
				log.Fatalf("row %d, column %s: %v", len(rows)+1, header[i], err)
			}
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		log.Fatal("csv has no data rows")
	}
	return header, rows
}

func postJSON(url string, body any, out any) {
	data, err := json.Marshal(body)
	if err != nil {
		log.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		log.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("read response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("POST %s: %s: %s", url, resp.Status, strings.TrimSpace(string(respBody)))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		log.Fatalf("parse response: %v", err)
	}
}
