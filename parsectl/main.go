package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"syscall"

	"github.com/docopt/docopt-go"
	"github.com/joho/godotenv"
	"golang.org/x/term"

	"github.com/sourada/parse-go/parse"
)

const ParseCtlVersion = "0.1.0"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

func main() {
	usage := `Parse backend control.

Credentials are read from the environment (or a .env file in the working
directory): PARSE_SERVER_URL, PARSE_APPLICATION_ID, PARSE_REST_API_KEY.
Alternatively pass --config with a yaml config file.

Usage:
    parsectl signup [--config=<config>]
        --username=<username>
        [--email=<email>]
        [--password=<password>]
    parsectl login [--config=<config>]
        --username=<username>
        [--password=<password>]
    parsectl reset-password [--config=<config>] --email=<email>
    parsectl create [--config=<config>] <class> <json>
    parsectl update [--config=<config>] <class> <id> <json>
    parsectl get [--config=<config>] <class> <id>
    parsectl delete [--config=<config>] <class> <id>
    parsectl upload [--config=<config>] <path>
    parsectl download [--config=<config>] --name=<name> --url=<url>

Options:
    -h --help                Show this screen.
    --version                Show version.
    --config=<config>        Yaml config file instead of the environment.
    --username=<username>
    --email=<email>
    --password=<password>    Prompted for when omitted.
    --name=<name>            Remote file name.
    --url=<url>              Remote file url.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], ParseCtlVersion)
	if err != nil {
		panic(err)
	}

	client := newClient(opts)
	defer client.Close()

	if signup_, _ := opts.Bool("signup"); signup_ {
		signup(client, opts)
	} else if login_, _ := opts.Bool("login"); login_ {
		login(client, opts)
	} else if resetPassword_, _ := opts.Bool("reset-password"); resetPassword_ {
		resetPassword(client, opts)
	} else if create_, _ := opts.Bool("create"); create_ {
		create(client, opts)
	} else if update_, _ := opts.Bool("update"); update_ {
		update(client, opts)
	} else if get_, _ := opts.Bool("get"); get_ {
		get(client, opts)
	} else if delete_, _ := opts.Bool("delete"); delete_ {
		deleteObject(client, opts)
	} else if upload_, _ := opts.Bool("upload"); upload_ {
		upload(client, opts)
	} else if download_, _ := opts.Bool("download"); download_ {
		download(client, opts)
	}
}

func newClient(opts docopt.Opts) *parse.Client {
	var config *parse.Config
	var err error
	if configPath, _ := opts.String("--config"); configPath != "" {
		config, err = parse.ConfigFromFile(configPath)
	} else {
		// a missing .env is fine, the environment may already be set
		godotenv.Load()
		config, err = parse.ConfigFromEnv(context.Background())
	}
	if err != nil {
		Err.Fatalf("Could not load config (%s)", err)
	}

	client, err := parse.NewClient(config)
	if err != nil {
		Err.Fatalf("Could not create client (%s)", err)
	}
	return client
}

func password(opts docopt.Opts) string {
	if password_, _ := opts.String("--password"); password_ != "" {
		return password_
	}
	fmt.Print("Password: ")
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		Err.Fatalf("Could not read password (%s)", err)
	}
	return string(passwordBytes)
}

func signup(client *parse.Client, opts docopt.Opts) {
	username, _ := opts.String("--username")
	email, _ := opts.String("--email")

	user := client.EstablishNewUser()
	user.SetUsername(username)
	if email != "" {
		user.SetEmail(email)
	}
	user.SetPassword(password(opts))

	ok, err := user.SignUpSync()
	if err != nil {
		Err.Fatalf("Sign up failed (%s)", err)
	}
	if !ok {
		Err.Fatalf("Sign up rejected")
	}
	Out.Printf("%s %s", user.Id(), user.SessionToken())
}

func login(client *parse.Client, opts docopt.Opts) {
	username, _ := opts.String("--username")

	user, err := client.LogInSync(username, password(opts))
	if err != nil {
		Err.Fatalf("Log in failed (%s)", err)
	}
	if user == nil {
		Err.Fatalf("Log in rejected")
	}
	Out.Printf("%s %s", user.Id(), user.SessionToken())
}

func resetPassword(client *parse.Client, opts docopt.Opts) {
	email, _ := opts.String("--email")

	ok, err := client.RequestPasswordResetSync(email)
	if err != nil {
		Err.Fatalf("Password reset failed (%s)", err)
	}
	if !ok {
		Err.Fatalf("Password reset rejected")
	}
	Out.Printf("Password reset requested for %s", email)
}

func properties(opts docopt.Opts) map[string]any {
	jsonStr, _ := opts.String("<json>")
	props := map[string]any{}
	if err := json.Unmarshal([]byte(jsonStr), &props); err != nil {
		Err.Fatalf("Invalid property json (%s)", err)
	}
	return props
}

func create(client *parse.Client, opts docopt.Opts) {
	class, _ := opts.String("<class>")

	object := client.NewObject(class)
	if object == nil {
		Err.Fatalf("Invalid class name")
	}
	for key, value := range properties(opts) {
		object.Set(key, parse.ValueFrom(value))
	}

	ok, err := object.SaveSync()
	if err != nil {
		Err.Fatalf("Save failed (%s)", err)
	}
	if !ok {
		Err.Fatalf("Save rejected")
	}
	Out.Printf("%s", object.Id())
}

func update(client *parse.Client, opts docopt.Opts) {
	class, _ := opts.String("<class>")
	id, _ := opts.String("<id>")

	object := client.NewObjectWithId(class, id)
	if object == nil {
		Err.Fatalf("Invalid class name or id")
	}
	for key, value := range properties(opts) {
		object.Set(key, parse.ValueFrom(value))
	}

	ok, err := object.SaveSync()
	if err != nil {
		Err.Fatalf("Save failed (%s)", err)
	}
	if !ok {
		Err.Fatalf("Save rejected")
	}
	Out.Printf("%s updated", object.Id())
}

func get(client *parse.Client, opts docopt.Opts) {
	class, _ := opts.String("<class>")
	id, _ := opts.String("<id>")

	object := client.NewObjectWithId(class, id)
	if object == nil {
		Err.Fatalf("Invalid class name or id")
	}

	ok, err := object.FetchSync()
	if err != nil {
		Err.Fatalf("Fetch failed (%s)", err)
	}
	if !ok {
		Err.Fatalf("Fetch rejected")
	}
	for _, key := range object.Keys() {
		Out.Printf("%s = %v", key, object.Get(key))
	}
}

func deleteObject(client *parse.Client, opts docopt.Opts) {
	class, _ := opts.String("<class>")
	id, _ := opts.String("<id>")

	object := client.NewObjectWithId(class, id)
	if object == nil {
		Err.Fatalf("Invalid class name or id")
	}

	ok, err := object.DeleteSync()
	if err != nil {
		Err.Fatalf("Delete failed (%s)", err)
	}
	if !ok {
		Err.Fatalf("Delete rejected")
	}
	Out.Printf("%s deleted", id)
}

func upload(client *parse.Client, opts docopt.Opts) {
	path, _ := opts.String("<path>")

	file := client.NewFileFromPath(path)
	if file == nil {
		Err.Fatalf("Invalid path")
	}

	ok, err := file.UploadSync()
	if err != nil {
		Err.Fatalf("Upload failed (%s)", err)
	}
	if !ok {
		Err.Fatalf("Upload rejected")
	}
	Out.Printf("%s %s", file.Name(), file.Url())
}

func download(client *parse.Client, opts docopt.Opts) {
	name, _ := opts.String("--name")
	url, _ := opts.String("--url")

	file := client.NewFileWithUrl(name, url)
	if file == nil {
		Err.Fatalf("Invalid file name")
	}

	ok, err := file.DownloadSync()
	if err != nil {
		Err.Fatalf("Download failed (%s)", err)
	}
	if !ok {
		Err.Fatalf("Download rejected")
	}
	data, _ := file.Data()
	Out.Printf("%s (%d bytes)", file.Name(), len(data))
}
