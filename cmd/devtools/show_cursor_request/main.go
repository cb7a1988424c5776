// Command show_cursor_request prints the Cursor chat body built from an OpenAI
// chat completions payload. With -reply it also prints the completion the
// proxy would return for the given upstream reply text.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/router-for-me/CursorProxyAPI/internal/stream"
	"github.com/router-for-me/CursorProxyAPI/internal/translator/cursor"
	"github.com/router-for-me/CursorProxyAPI/internal/util"
	"github.com/tidwall/gjson"
)

func main() {
	model := flag.String("model", "", "model name (defaults to the payload's model)")
	reply := flag.String("reply", "", "file holding upstream reply text to translate")
	flag.Parse()
	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: show_cursor_request [-model m] [-reply file] <payload.json>")
		os.Exit(2)
	}
	if err := run(flag.Arg(0), *model, *reply); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(payloadPath, model, replyPath string) error {
	payload, err := os.ReadFile(payloadPath)
	if err != nil {
		return err
	}
	if model == "" {
		model = gjson.GetBytes(payload, "model").String()
	}
	body, err := cursor.BuildRequest(model, payload, util.RandomString(16))
	if err != nil {
		return err
	}
	fmt.Println(gjson.GetBytes(body, "@pretty").Raw)

	if replyPath == "" {
		return nil
	}
	text, err := os.ReadFile(replyPath)
	if err != nil {
		return err
	}
	out, err := cursor.Aggregate(context.Background(), model, stream.FromSlice([]string{string(text)}))
	if err != nil {
		return err
	}
	fmt.Println(gjson.GetBytes(out, "@pretty").Raw)
	return nil
}
