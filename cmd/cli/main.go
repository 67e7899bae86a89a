package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "auth":
		handleAuth(args)
	case "book":
		handleBook(args)
	case "loan":
		handleLoan(args)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func handleAuth(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: biblioteca auth <login|logout|who>")
		return
	}

	subCmd := args[0]
	switch subCmd {
	case "login":
		loginMember(args[1:])
	case "logout":
		logoutMember()
	case "who":
		whoAmI()
	default:
		fmt.Printf("unknown auth command: %s\n", subCmd)
	}
}

func handleBook(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: biblioteca book <available>")
		return
	}

	subCmd := args[0]
	switch subCmd {
	case "available":
		listAvailableBooks(args[1:])
	default:
		fmt.Printf("unknown book command: %s\n", subCmd)
	}
}

func handleLoan(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: biblioteca loan <checkout|return|list|overdue|member>")
		return
	}

	subCmd := args[0]
	switch subCmd {
	case "checkout":
		checkoutBook(args[1:])
	case "return":
		returnLoan(args[1:])
	case "list":
		listLoans(args[1:])
	case "overdue":
		listOverdueLoans(args[1:])
	case "member":
		listMemberLoans(args[1:])
	default:
		fmt.Printf("unknown loan command: %s\n", subCmd)
	}
}

// Auth commands
func loginMember(args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "member email")
	password := fs.String("password", "", "password")

	fs.Parse(args)

	if *email == "" || *password == "" {
		fmt.Println("Error: email and password are required")
		fs.PrintDefaults()
		return
	}

	payload := map[string]string{"email": *email, "password": *password}
	data, _ := json.Marshal(payload)
	resp, err := http.Post(getAPIURL()+"/login", "application/json", bytes.NewReader(data))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	if resp.StatusCode == 200 {
		if token, ok := result["token"].(string); ok {
			saveToken(token)
			fmt.Printf("✓ Logged in as: %s\n", *email)
		}
	} else {
		fmt.Printf("✗ Login failed: %v\n", result)
	}
}

func logoutMember() {
	os.Remove(tokenFile())
	fmt.Println("✓ Logged out")
}

func whoAmI() {
	token := loadToken()
	if token == "" {
		fmt.Println("Not logged in")
		return
	}
	fmt.Printf("✓ Logged in (token: %s...)\n", token[:20])
}

// Book commands
func listAvailableBooks(args []string) {
	_ = args
	req, _ := http.NewRequest("GET", getAPIURL()+"/books/available", nil)
	addAuthHeader(req)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	var result struct {
		Books []map[string]interface{} `json:"books"`
	}
	json.NewDecoder(resp.Body).Decode(&result)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tISBN\tAVAILABLE\tTOTAL")
	for _, b := range result.Books {
		fmt.Fprintf(w, "%v\t%v\t%v\t%v\t%v\n",
			b["id"], b["title"], b["isbn"], b["availableCopies"], b["totalCopies"])
	}
	w.Flush()
}

// Loan commands
func checkoutBook(args []string) {
	fs := flag.NewFlagSet("checkout", flag.ExitOnError)
	bookID := fs.String("book", "", "book ID")
	userID := fs.String("member", "", "member ID")

	fs.Parse(args)

	if *bookID == "" || *userID == "" {
		fmt.Println("Error: book and member are required")
		fs.PrintDefaults()
		return
	}

	payload := map[string]string{"bookId": *bookID, "userId": *userID}
	data, _ := json.Marshal(payload)
	req, _ := http.NewRequest("POST", getAPIURL()+"/checkout", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	addAuthHeader(req)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	if resp.StatusCode == 201 {
		fmt.Printf("✓ Checked out loan %v, due %v\n", result["id"], result["dueDate"])
	} else {
		fmt.Printf("✗ Checkout failed: %v\n", result)
	}
}

func returnLoan(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: biblioteca loan return <loan-id>")
		return
	}
	loanID := args[0]

	req, _ := http.NewRequest("POST", getAPIURL()+"/loans/"+loanID+"/return", nil)
	addAuthHeader(req)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	if resp.StatusCode == 200 {
		fmt.Printf("✓ Returned loan %v\n", result["id"])
	} else {
		fmt.Printf("✗ Return failed: %v\n", result)
	}
}

func listLoans(args []string) {
	_ = args
	printLoanTable(getAPIURL() + "/loans")
}

func listOverdueLoans(args []string) {
	_ = args
	printLoanTable(getAPIURL() + "/loans/overdue")
}

func listMemberLoans(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: biblioteca loan member <member-id>")
		return
	}
	printLoanTable(getAPIURL() + "/users/" + args[0] + "/loans")
}

func printLoanTable(url string) {
	req, _ := http.NewRequest("GET", url, nil)
	addAuthHeader(req)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	var result struct {
		Loans []map[string]interface{} `json:"loans"`
	}
	json.NewDecoder(resp.Body).Decode(&result)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tBOOK\tMEMBER\tSTATUS\tDUE")
	for _, l := range result.Loans {
		fmt.Fprintf(w, "%v\t%v\t%v\t%v\t%v\n",
			l["id"], l["bookId"], l["userId"], l["status"], l["dueDate"])
	}
	w.Flush()
}

// Helper functions
func getAPIURL() string {
	if url := os.Getenv("BIBLIOTECA_API"); url != "" {
		return url
	}
	return "http://localhost:8080/api"
}

func tokenFile() string {
	home, _ := os.UserHomeDir()
	return home + "/.biblioteca/token"
}

func saveToken(token string) error {
	os.MkdirAll(os.Getenv("HOME")+"/.biblioteca", 0700)
	return os.WriteFile(tokenFile(), []byte(token), 0600)
}

func loadToken() string {
	data, _ := os.ReadFile(tokenFile())
	return string(data)
}

func addAuthHeader(req *http.Request) {
	token := loadToken()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func printUsage() {
	fmt.Print(`Biblioteca CLI

Usage:
  biblioteca <command> [options]

Commands:
  auth   Member authentication (login, logout, who)
  book   Catalog queries (available)
  loan   Loan operations (checkout, return, list, overdue, member)
  help   Show this help message

Environment Variables:
  BIBLIOTECA_API    API endpoint (default: http://localhost:8080/api)

Examples:
  biblioteca auth login -email reader@example.com -password pass
  biblioteca book available
  biblioteca loan checkout -book b1 -member m1
  biblioteca loan return 7f3c...
  biblioteca loan overdue
`)
}
